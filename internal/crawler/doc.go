// Package crawler defines the core types and contracts shared by the topcv job
// crawler: listing records, scheduler status, the store interfaces, and the
// orchestrator that walks categories page by page.
package crawler
