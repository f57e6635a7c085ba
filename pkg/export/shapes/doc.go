// Package shapes declares the Exported* record shapes and the table that binds
// each raw record kind to one of them.
//
// Shapes are append-only. Adding an optional field bumps the shape's version
// in the table; readers that do not know the field ignore it, and records
// written before the field existed decode with the field absent.
package shapes
