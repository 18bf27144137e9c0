// Package fluds lays out angular-flux storage for one sweep plan.
//
// Every face that carries flux between two cells gets a place to live:
//
//   - Faces between two local cells share a lock box, a pool of equally
//     sized slots. A slot is taken when the upwind cell is swept and
//     returned when the downwind cell has read it, so the pool never holds
//     more than the sweep front.
//   - Faces across a removed (cyclic) local edge get a dedicated,
//     never-reused offset in the delayed-local buffer, which carries the
//     previous sweep's values.
//   - Faces leaving the partition are packed back to back into one
//     serialized buffer per downstream partition; faces entering it are
//     read from one buffer per upstream partition. Delayed partitions get
//     separate buffers.
//
// Offsets are counted in face DOFs. One face DOF expands to
// angles*groups doubles in the actual buffers.
//
// Layout construction is two passes over the sweep order (alpha assigns
// producer storage, beta resolves consumers) plus a one-time exchange that
// tells each partition where its upstream neighbors put the faces it
// reads.
package fluds
