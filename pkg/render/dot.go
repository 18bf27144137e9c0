package render

import (
	"bytes"
	"context"
	"fmt"
	"maps"
	"regexp"
	"slices"
	"strconv"
	"strings"

	"github.com/goccy/go-graphviz"

	"github.com/matzehuels/sweeptower/pkg/errors"
	"github.com/matzehuels/sweeptower/pkg/spds"
)

// Options configures diagram generation.
type Options struct {
	// Detailed adds level and sweep position to cell labels.
	Detailed bool
	// Partitions draws neighboring partitions and the faces shared with
	// them.
	Partitions bool
}

// ToDOT converts the sweep plan of one partition to Graphviz DOT.
func ToDOT(s *spds.SPDS, opts Options) string {
	m := s.Mesh()
	rel := s.Relationships()
	levels := s.Levels()
	omega := s.Omega()

	var buf bytes.Buffer
	buf.WriteString("digraph G {\n")
	buf.WriteString("  rankdir=TB;\n")
	buf.WriteString("  bgcolor=\"transparent\";\n")
	fmt.Fprintf(&buf, "  label=%q;\n", fmt.Sprintf("partition %d  omega=(%.3g, %.3g, %.3g)", m.Partition(), omega.X, omega.Y, omega.Z))
	buf.WriteString("  node [shape=box, style=\"rounded,filled\", fillcolor=white, fontsize=14];\n")
	buf.WriteString("  ranksep=0.5;\n")
	buf.WriteString("  nodesep=0.3;\n")
	buf.WriteString("\n")

	byLevel := map[int][]int{}
	for _, c := range s.Order() {
		lvl := 0
		if c < len(levels) {
			lvl = levels[c]
		}
		byLevel[lvl] = append(byLevel[lvl], c)
		fmt.Fprintf(&buf, "  %s [label=%q];\n", cellID(m.LocalCell(c).GlobalID), cellLabel(s, c, lvl, opts.Detailed))
	}
	for _, lvl := range slices.Sorted(maps.Keys(byLevel)) {
		ids := make([]string, 0, len(byLevel[lvl]))
		for _, c := range byLevel[lvl] {
			ids = append(ids, cellID(m.LocalCell(c).GlobalID))
		}
		fmt.Fprintf(&buf, "  { rank=same; %s; }\n", strings.Join(ids, "; "))
	}

	buf.WriteString("\n")
	for c, succs := range rel.Successors {
		from := cellID(m.LocalCell(c).GlobalID)
		for _, e := range succs {
			to := cellID(m.LocalCell(e.Cell).GlobalID)
			if s.IsCyclic(c, e.Cell) {
				fmt.Fprintf(&buf, "  %s -> %s [style=dashed, color=red, constraint=false, label=%q];\n", from, to, weight(e.Weight))
				continue
			}
			fmt.Fprintf(&buf, "  %s -> %s;\n", from, to)
		}
	}

	if opts.Partitions {
		writePartitions(&buf, s)
	}

	buf.WriteString("}\n")
	return buf.String()
}

func writePartitions(buf *bytes.Buffer, s *spds.SPDS) {
	m := s.Mesh()
	delayedIn := s.DelayedDependencies()
	delayedOut := s.DelayedSuccessors()

	parts := slices.Concat(s.LocationDependencies(), s.LocationSuccessors())
	slices.Sort(parts)
	parts = slices.Compact(parts)
	if len(parts) == 0 {
		return
	}
	buf.WriteString("\n")
	for _, p := range parts {
		fmt.Fprintf(buf, "  %s [shape=ellipse, style=filled, fillcolor=lightgrey, label=%q];\n", partitionID(p), fmt.Sprintf("partition %d", p))
	}

	type edge struct{ from, to string }
	seen := map[edge]bool{}
	for c := range m.NumLocalCells() {
		cell := m.LocalCell(c)
		for fi, f := range cell.Faces {
			if !f.HasNeighbor || m.IsLocal(f.NeighborID) {
				continue
			}
			p := m.PartitionOf(f.NeighborID)
			var e edge
			var delayed bool
			switch s.Orientation(c, fi) {
			case spds.Incoming:
				e, delayed = edge{partitionID(p), cellID(cell.GlobalID)}, slices.Contains(delayedIn, p)
			case spds.Outgoing:
				e, delayed = edge{cellID(cell.GlobalID), partitionID(p)}, slices.Contains(delayedOut, p)
			default:
				continue
			}
			if seen[e] {
				continue
			}
			seen[e] = true
			if delayed {
				fmt.Fprintf(buf, "  %s -> %s [style=dashed, color=red, constraint=false];\n", e.from, e.to)
			} else {
				fmt.Fprintf(buf, "  %s -> %s [style=dotted];\n", e.from, e.to)
			}
		}
	}
}

func cellLabel(s *spds.SPDS, c, level int, detailed bool) string {
	id := strconv.Itoa(s.Mesh().LocalCell(c).GlobalID)
	if !detailed {
		return id
	}
	return fmt.Sprintf("%s\nlevel: %d\nposition: %d", id, level, s.Position(c))
}

func cellID(gid int) string { return "c" + strconv.Itoa(gid) }

func partitionID(p int) string { return "p" + strconv.Itoa(p) }

func weight(w float64) string { return strconv.FormatFloat(w, 'g', 3, 64) }

// RenderSVG renders DOT source to SVG with an embedded Graphviz.
func RenderSVG(ctx context.Context, dot string) ([]byte, error) {
	gv, err := graphviz.New(ctx)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeInternal, err, "init graphviz")
	}
	defer gv.Close()

	g, err := graphviz.ParseBytes([]byte(dot))
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeInvalidConfig, err, "parse DOT")
	}
	defer g.Close()

	var buf bytes.Buffer
	if err := gv.Render(ctx, g, graphviz.SVG, &buf); err != nil {
		return nil, errors.Wrap(errors.ErrCodeInternal, err, "render SVG")
	}
	return normalizeViewBox(buf.Bytes()), nil
}

var (
	svgTagRe  = regexp.MustCompile(`<svg[^>]*>`)
	viewBoxRe = regexp.MustCompile(`viewBox="([0-9.]+)\s+([0-9.]+)\s+([0-9.]+)\s+([0-9.]+)"`)
)

// normalizeViewBox replaces Graphviz's point-based svg header with one
// whose viewBox starts at the origin.
func normalizeViewBox(svg []byte) []byte {
	match := viewBoxRe.FindSubmatch(svg)
	if match == nil {
		return svg
	}
	w, _ := strconv.ParseFloat(string(match[3]), 64)
	h, _ := strconv.ParseFloat(string(match[4]), 64)
	if w == 0 || h == 0 {
		return svg
	}
	header := fmt.Sprintf(`<svg xmlns="http://www.w3.org/2000/svg" viewBox="0 0 %.2f %.2f" width="%.0f" height="%.0f">`, w, h, w, h)
	return svgTagRe.ReplaceAll(svg, []byte(header))
}
