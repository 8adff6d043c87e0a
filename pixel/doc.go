// Package pixel implements the stroke history and pixel state of one drawing
// surface: the sparse grid, the bounded undo/redo stroke log, flood fill,
// mirror symmetry and the shape rasterizers used by the drawing tools.
//
// The stroke log is the source of truth. The grid is always reconstructible
// by replaying the active strokes, which is what undo and redo do.
package pixel
