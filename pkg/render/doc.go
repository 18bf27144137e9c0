// Package render draws sweep plans as Graphviz diagrams.
//
// [ToDOT] turns the local cell graph of an [spds.SPDS] into DOT source:
// one box per local cell, ranked by wavefront level, with an arrow for
// every upwind to downwind dependency. Edges removed to break a cycle are
// drawn dashed in red so they stand out. Neighboring partitions appear as
// ellipses; delayed partition dependencies are dashed as well.
//
//	dot := render.ToDOT(plan, render.Options{Detailed: true})
//	svg, err := render.RenderSVG(ctx, dot)
//
// SVG rendering runs Graphviz in-process through
// [github.com/goccy/go-graphviz]; no system installation is needed.
//
// [spds.SPDS]: github.com/matzehuels/sweeptower/pkg/spds.SPDS
package render
