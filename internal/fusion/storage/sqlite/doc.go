// Package sqlite persists fusion run summaries. All SQL for run records
// lives here rather than in the fusion package, keeping the numerical core
// free of storage noise and easy to reuse without a database.
package sqlite
