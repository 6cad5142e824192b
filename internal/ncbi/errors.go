// Package ncbi downloads protein sequences from the NCBI E-utilities and Datasets services.
package ncbi

import "fmt"

// BatchError reports that sequence retrieval gave up after too many failed sub-batches.
type BatchError struct {
	Failures int
	Cause    error
}

func (e *BatchError) Error() string {
	msg := fmt.Sprintf("exceeded maximum failed NCBI queries (%d); NCBI is likely down or not responding, wait a while and retry, or reduce the query size", e.Failures)
	if e.Cause != nil {
		return fmt.Sprintf("%s: last error: %v", msg, e.Cause)
	}
	return msg
}

func (e *BatchError) Unwrap() error {
	return e.Cause
}

// QueryError reports one failed sub-batch. The client retries these with a
// smaller batch.
type QueryError struct {
	Step    string
	Message string
	Cause   error
}

func (e *QueryError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("ncbi %s failed: %s: %v", e.Step, e.Message, e.Cause)
	}
	return fmt.Sprintf("ncbi %s failed: %s", e.Step, e.Message)
}

func (e *QueryError) Unwrap() error {
	return e.Cause
}

// DatasetError reports a failed genome or gene package download.
type DatasetError struct {
	Message string
	Cause   error
}

func (e *DatasetError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("ncbi datasets error: %s: %v", e.Message, e.Cause)
	}
	return fmt.Sprintf("ncbi datasets error: %s", e.Message)
}

func (e *DatasetError) Unwrap() error {
	return e.Cause
}
