// Package flow implements a retained layer tree with incremental diffing.
//
// Each frame the producer builds a tree of layers. The rasterizer runs
// three passes over it:
//
//   - Preroll computes paint bounds and flags bottom-up, and lets the raster
//     cache prepare images for stable subtrees.
//   - Diff walks the tree alongside the previous frame's tree and computes
//     the damaged area. A layer object reused from the previous frame is
//     retained without being visited, unless its subtree reads back pixels
//     or holds textures.
//   - Paint draws every layer that intersects the canvas clip, which the
//     rasterizer sets to the damage.
//
// Structural invariants, such as diffing a clean subtree without an old
// layer, are checked with errors.Assert and panic when broken.
package flow
