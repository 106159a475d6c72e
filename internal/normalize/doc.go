// Package normalize turns free-form listing text into typed values: salary in
// million VND per month, posting dates, canonical city names, experience years
// and bucket labels. Every rule is data-driven through Rules.
package normalize
