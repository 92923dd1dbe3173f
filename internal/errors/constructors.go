package errors

// Convenience functions for common error patterns

// Config errors

func ConfigNotFound(path string) *BookError {
	return New(CategoryConfig, SeverityFatal, "configuration file not found").
		WithContext("path", path)
}

func ValidationFailed(field, reason string) *BookError {
	return New(CategoryValidation, SeverityFatal, "validation failed").
		WithContext("field", field).
		WithContext("reason", reason)
}

// Remote service errors

func AuthError(url string, cause error) *BookError {
	return Wrap(cause, CategoryAuth, SeverityFatal, "authentication rejected").
		WithContext("url", url)
}

func NotFoundError(url string) *BookError {
	return New(CategoryNotFound, SeverityError, "resource not found").
		WithContext("url", url)
}

func MalformedResponse(url string, cause error) *BookError {
	return Wrap(cause, CategoryMalformed, SeverityError, "malformed response").
		WithContext("url", url)
}

func NetworkError(url string, cause error) *BookError {
	return WrapRetryable(cause, CategoryNetwork, SeverityWarning, "network error").
		WithContext("url", url)
}

func ServerError(url string, status int) *BookError {
	return WrapRetryable(nil, CategoryNetwork, SeverityWarning, "transient server error").
		WithContext("url", url).
		WithContext("status", status)
}

func RetriesExhausted(url string, attempts int, cause error) *BookError {
	return Wrap(cause, CategoryNetwork, SeverityError, "retry budget exhausted").
		WithContext("url", url).
		WithContext("attempts", attempts)
}

// Content errors

func ContentError(filename, reason string) *BookError {
	return New(CategoryContent, SeverityError, "chapter content unusable").
		WithContext("filename", filename).
		WithContext("reason", reason)
}

// Run-fatal errors

func FilenameCollision(filename, firstURL, secondURL string) *BookError {
	return New(CategoryStructural, SeverityFatal, "local filename collision").
		WithContext("filename", filename).
		WithContext("first_url", firstURL).
		WithContext("second_url", secondURL)
}

func FailureThresholdExceeded(failed, total int, ratio float64) *BookError {
	return New(CategoryStructural, SeverityFatal, "chapter failure ratio exceeds threshold").
		WithContext("failed", failed).
		WithContext("total", total).
		WithContext("threshold", ratio)
}

func NoChapters() *BookError {
	return New(CategoryStructural, SeverityFatal, "no chapters succeeded")
}

func DestinationError(path string, cause error) *BookError {
	return Wrap(cause, CategoryFileSystem, SeverityFatal, "destination not writable").
		WithContext("path", path)
}

func WorkspaceError(operation string, cause error) *BookError {
	return Wrap(cause, CategoryFileSystem, SeverityFatal, "workspace operation failed").
		WithContext("operation", operation)
}

func AssembleError(reason string, cause error) *BookError {
	return Wrap(cause, CategoryStructural, SeverityFatal, "package assembly failed").
		WithContext("reason", reason)
}
