// Package surface presents rasterized frames.
//
// A Frame is acquired from a surface once per frame, drawn into through its
// canvas, annotated with the damage computed by the layer tree diff, and
// submitted exactly once. Frames that are never submitted are discarded
// without presenting anything.
//
// ImageSurface is a software swapchain backed by in-memory RGBA buffers. It
// tracks which regions each back buffer missed while other buffers were
// presented, so callers can redraw only the damaged part of a reused buffer.
package surface
