// Package services runs the four outreach commands end to end: SMS send,
// link shortening, payout send and payout reconciliation. Each service
// reads its input, applies the validation gates, dispatches through the
// pacing chunker, reconciles provider outcomes and writes the output file
// next to the input.
//
// Blocking gate failures are returned before any provider call and before
// any file is written. Once dispatch has begun an output file is always
// written, even when the run is cancelled part way.
package services

import "errors"

var (
	// ErrNoProcessedBatches is returned when a worksheet handed to payout
	// reconciliation has no processed_code values.
	ErrNoProcessedBatches = errors.New("worksheet has no processed payout batches")

	// ErrUnsupportedTemplate is returned for a template file that is
	// neither YAML nor an Excel workbook.
	ErrUnsupportedTemplate = errors.New("template must be a .yaml, .yml or .xlsx file")

	// ErrTemplateRequired is returned when a payout worksheet is given
	// without -t and no workbook with a Template sheet sits next to it.
	ErrTemplateRequired = errors.New("no payout template: pass -t or keep the payments workbook next to the worksheet")
)
