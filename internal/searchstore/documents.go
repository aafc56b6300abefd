package searchstore

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/maktaba-dev/maktaba/internal/errors"
)

// IndexDocument replaces a document's search rows wholesale: the document
// row is PUT, existing paragraph rows are dropped by document_id filter, and
// the given paragraph rows go up in size-bounded batches. The filter delete
// is what evicts paragraphs the catalog no longer holds; re-sending the same
// state is idempotent.
func (c *Client) IndexDocument(ctx context.Context, doc DocumentRow, paragraphs []ParagraphRow) error {
	if doc.ID == "" {
		return errors.InputInvalid("document id is required", nil)
	}

	if err := c.submit(ctx, http.MethodPut,
		"/indexes/"+c.docIndex+"/documents", []DocumentRow{doc}); err != nil {
		return err
	}
	if err := c.deleteParagraphRows(ctx, doc.ID); err != nil {
		return err
	}
	return c.uploadParagraphs(ctx, paragraphs)
}

// uploadParagraphs flushes rows in size-bounded batches.
func (c *Client) uploadParagraphs(ctx context.Context, rows []ParagraphRow) error {
	if len(rows) == 0 {
		return nil
	}

	path := "/indexes/" + c.paraIndex + "/documents"
	var batch []json.RawMessage
	size := 2 // array brackets

	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		err := c.submit(ctx, http.MethodPut, path, batch)
		batch = batch[:0]
		size = 2
		return err
	}

	for i := range rows {
		data, err := json.Marshal(rows[i])
		if err != nil {
			return errors.SearchFailed(fmt.Sprintf("marshal paragraph %s", rows[i].ID), err)
		}
		rowSize := len(data) + 1 // trailing comma
		if rowSize > c.batchBytes {
			// A single oversized row still ships alone; the budget is a
			// fraction of the engine's hard cap.
			slog.Warn("paragraph_exceeds_batch_budget",
				slog.String("paragraph_id", rows[i].ID),
				slog.Int("bytes", rowSize),
				slog.Int("budget", c.batchBytes))
		}
		if len(batch) > 0 && size+rowSize > c.batchBytes {
			if err := flush(); err != nil {
				return err
			}
		}
		batch = append(batch, data)
		size += rowSize
	}
	return flush()
}

// DeleteDocument removes the document row and every paragraph row carrying
// its document_id.
func (c *Client) DeleteDocument(ctx context.Context, id string) error {
	if id == "" {
		return errors.InputInvalid("document id is required", nil)
	}

	if err := c.submit(ctx, http.MethodDelete,
		"/indexes/"+c.docIndex+"/documents/"+id, nil); err != nil {
		return err
	}
	return c.deleteParagraphRows(ctx, id)
}

// deleteParagraphRows evicts every paragraph row of one document.
func (c *Client) deleteParagraphRows(ctx context.Context, documentID string) error {
	return c.submit(ctx, http.MethodPost,
		"/indexes/"+c.paraIndex+"/documents/delete",
		map[string]string{"filter": fmt.Sprintf("document_id = %q", documentID)})
}

// UpdatePartial patches the named fields on each row, leaving the rest in
// place. POST is the engine's partial-update verb; one call is one task. The
// sync worker uses this for metadata-only updates, where re-uploading
// vectors would be waste.
func (c *Client) UpdatePartial(ctx context.Context, indexUID string, rows ...PartialUpdate) error {
	if len(rows) == 0 {
		return nil
	}
	payload := make([]map[string]any, 0, len(rows))
	for _, row := range rows {
		if row.ID == "" {
			return errors.InputInvalid("row id is required", nil)
		}
		patch := make(map[string]any, len(row.Fields)+1)
		for k, v := range row.Fields {
			patch[k] = v
		}
		patch["id"] = row.ID
		payload = append(payload, patch)
	}
	return c.submit(ctx, http.MethodPost,
		"/indexes/"+indexUID+"/documents", payload)
}
