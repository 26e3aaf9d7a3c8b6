package models

import "github.com/docscan/docscan/internal/geometry"

// These structs define the JSON payloads exchanged with the capture layer
// over the HTTP surface.

// DetectResponse carries the best detected boundary for overlay drawing.
// Quad is null when no rectangle cleared the confidence threshold, which
// is a normal outcome: the caller offers a manual use-as-is fallback.
type DetectResponse struct {
	Quad   *geometry.Quad `json:"quad"`
	Width  int            `json:"width"`
	Height int            `json:"height"`
}

// RenameRequest updates a document's title.
type RenameRequest struct {
	Title string `json:"title" binding:"required"`
}

// ListResponse is one window of the documents listing, newest first.
type ListResponse struct {
	Items []Document `json:"items"`
	Total int64      `json:"total"`
	Page  int        `json:"page"`
	Size  int        `json:"size"`
}

// DeleteAllResponse reports the ids removed by a bulk delete so in-memory
// caches can reconcile.
type DeleteAllResponse struct {
	DeletedIDs []string `json:"deletedIds"`
}
