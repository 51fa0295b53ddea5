package utils

import (
	"context"
	"errors"
	"io"
	"net"
	"os"
	"strings"
	"syscall"
)

// --- Sentinel Errors for Categorization ---
var (
	ErrFetch               = errors.New("page fetch returned non-success status") // Wraps status/URL
	ErrMissingTitle        = errors.New("page has no title element")
	ErrMissingCategory     = errors.New("post block has no category label")
	ErrMissingListing      = errors.New("category page has no listing container")
	ErrUnparseableSize     = errors.New("gallery fragment does not declare exactly two dimensions")
	ErrMalformedURL        = errors.New("URL has fewer than two dot-delimited labels")
	ErrDestinationNotFound = errors.New("destination root does not exist")
	ErrRemoteDisconnected  = errors.New("remote end closed connection")
	ErrRetryFailed         = errors.New("request failed after all retries") // Wraps the last underlying error
	ErrRobotsDisallowed    = errors.New("disallowed by robots.txt")
	ErrParsing             = errors.New("parsing error")    // Wraps specific parsing error (HTML, URL)
	ErrFilesystem          = errors.New("filesystem error") // Wraps os errors
	ErrDatabase            = errors.New("database error")   // Wraps badger errors
	ErrRequestCreation     = errors.New("failed to create HTTP request")
	ErrResponseBodyRead    = errors.New("failed to read response body")
	ErrConfigValidation    = errors.New("configuration validation error")
)

// IsRemoteDisconnect reports whether err means the server dropped the connection
// before a complete response arrived. This is the only download failure that is retried.
func IsRemoteDisconnect(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrRemoteDisconnected) ||
		errors.Is(err, io.EOF) ||
		errors.Is(err, io.ErrUnexpectedEOF) ||
		errors.Is(err, syscall.ECONNRESET) {
		return true
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "server closed idle connection") ||
		strings.Contains(msg, "connection reset by peer") ||
		strings.HasSuffix(msg, ": eof")
}

// CategorizeError maps an error to a predefined category string for logging and the journal.
func CategorizeError(err error) string {
	if err == nil {
		return "None"
	}

	// Check against sentinel errors first
	switch {
	case errors.Is(err, ErrRetryFailed):
		if IsRemoteDisconnect(err) {
			return "RetryFailed_RemoteDisconnected"
		}
		return "RetryFailed_Unknown"
	case errors.Is(err, ErrFetch):
		errMsg := err.Error()
		if strings.Contains(errMsg, " 404 ") {
			return "HTTP_404"
		}
		if strings.Contains(errMsg, " 403 ") {
			return "HTTP_403"
		}
		if strings.Contains(errMsg, " 429 ") {
			return "HTTP_429"
		}
		if strings.Contains(errMsg, "status 5") {
			return "HTTP_5xx"
		}
		return "HTTP_OtherStatus"
	case errors.Is(err, ErrMissingTitle):
		return "Structure_MissingTitle"
	case errors.Is(err, ErrMissingCategory):
		return "Structure_MissingCategory"
	case errors.Is(err, ErrMissingListing):
		return "Structure_MissingListing"
	case errors.Is(err, ErrUnparseableSize):
		return "Content_UnparseableSize"
	case errors.Is(err, ErrMalformedURL):
		return "Content_MalformedURL"
	case errors.Is(err, ErrDestinationNotFound):
		return "Config_DestinationNotFound"
	case errors.Is(err, ErrRobotsDisallowed):
		return "Policy_Robots"
	case errors.Is(err, ErrParsing):
		errMsg := err.Error()
		if strings.Contains(errMsg, "URL") {
			return "Content_ParsingURL"
		}
		if strings.Contains(errMsg, "HTML") {
			return "Content_ParsingHTML"
		}
		return "Content_ParsingOther"
	case errors.Is(err, ErrFilesystem):
		if errors.Is(err, os.ErrPermission) {
			return "Filesystem_Permission"
		}
		if errors.Is(err, os.ErrNotExist) {
			return "Filesystem_NotExist"
		}
		if errors.Is(err, os.ErrExist) {
			return "Filesystem_Exist"
		}
		return "Filesystem_Other"
	case errors.Is(err, ErrDatabase):
		return "Database_Other"
	case errors.Is(err, ErrRequestCreation):
		return "Internal_RequestCreation"
	case errors.Is(err, ErrResponseBodyRead):
		return "Network_BodyRead"
	case errors.Is(err, ErrConfigValidation):
		return "Config_Validation"
	}

	// --- Fallback checks for common underlying error types/strings ---

	if errors.Is(err, context.Canceled) {
		return "System_ContextCanceled"
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return "System_ContextDeadlineExceeded"
	}
	if IsRemoteDisconnect(err) {
		return "Network_RemoteDisconnected"
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return "Network_Timeout"
	}
	lowerErrMsg := strings.ToLower(err.Error())
	if strings.Contains(lowerErrMsg, "timeout") {
		return "Network_TimeoutGeneric"
	}
	if strings.Contains(lowerErrMsg, "connection refused") {
		return "Network_ConnectionRefused"
	}
	if strings.Contains(lowerErrMsg, "no such host") {
		return "Network_DNSLookup"
	}
	if strings.Contains(lowerErrMsg, "tls") || strings.Contains(lowerErrMsg, "certificate") {
		return "Network_TLS"
	}
	if strings.Contains(lowerErrMsg, "broken pipe") {
		return "Network_BrokenPipe"
	}

	return "Unknown"
}
