// Package analytics aggregates stored listings into the views served by the
// query API. Categorical fields are re-derived from raw text with the
// normalize rules so older records aggregate the same way as new ones.
package analytics
