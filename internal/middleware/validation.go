package middleware

import (
	"bytes"
	"encoding/json"
	"io"
	"math"
	"net/http"
	"strings"

	"learnapp/internal/observability"

	"github.com/gin-gonic/gin"
)

// Global schema loader instance
var globalSchemaLoader *SchemaLoader

// initSchemaLoader initializes the global schema loader once
func initSchemaLoader() *SchemaLoader {
	if globalSchemaLoader == nil {
		globalSchemaLoader = AutoLoadSchemas()
	}
	return globalSchemaLoader
}

// ResponseValidationMiddleware creates middleware that automatically validates responses
func ResponseValidationMiddleware(logger *observability.Logger) gin.HandlerFunc {
	// Initialize schema loader once
	schemaLoader := initSchemaLoader()

	return func(c *gin.Context) {
		// Start tracing span for validation
		ctx, span := observability.TraceHandlerFunction(c.Request.Context(), "response_validation")
		defer span.End()

		// Store the original response writer
		originalWriter := c.Writer

		// Create a custom response writer that captures the response
		responseWriter := &responseCaptureWriter{
			ResponseWriter: originalWriter,
			body:           &bytes.Buffer{},
			status:         0,
		}

		// Replace the response writer
		c.Writer = responseWriter

		// Continue to the next handler
		c.Next()

		// After the response is written, validate it
		statusCode := responseWriter.status
		if statusCode == 0 {
			statusCode = c.Writer.Status()
		}

		// Only validate 2xx responses
		if statusCode >= http.StatusOK && statusCode < http.StatusMultipleChoices {
			// Skip validation for streaming responses
			contentType := c.Writer.Header().Get("Content-Type")
			if contentType == "text/event-stream" {
				span.SetAttributes(
					observability.AttributeTypeFilter("streaming_response"),
				)
				logger.Debug(ctx, "Skipping validation for streaming response", map[string]interface{}{
					"method": c.Request.Method,
					"path":   c.Request.URL.Path,
				})
				// Write the buffered response to the real writer
				c.Writer = originalWriter
				c.Writer.WriteHeader(statusCode)
				_, _ = c.Writer.Write(responseWriter.body.Bytes())
				return
			}

			// Try to parse the response as JSON
			var responseData interface{}
			err := json.Unmarshal(responseWriter.body.Bytes(), &responseData)
			if err == nil {
				// Automatically determine schema name from the endpoint
				schemaName := schemaLoader.DetermineSchemaFromPath(c.Request.URL.Path, c.Request.Method)

				// Add tracing attributes
				span.SetAttributes(
					observability.AttributeSearch(c.Request.URL.Path),
					observability.AttributeTypeFilter(c.Request.Method),
				)

				if schemaName != "" {
					span.SetAttributes(observability.AttributeSearch(schemaName))

					if err := schemaLoader.ValidateData(responseData, schemaName); err != nil {
						// Log the validation error and add tracing attributes
						span.SetAttributes(
							observability.AttributeTypeFilter("validation_failed"),
						)

						// Log the validation error and fail the request
						logger.Error(ctx, "Response validation failed", err, map[string]interface{}{
							"method":        c.Request.Method,
							"path":          c.Request.URL.Path,
							"schema_name":   schemaName,
							"error":         err.Error(),
							"response_data": responseWriter.body.String()[:int(math.Min(200, float64(responseWriter.body.Len())))],
						})

						// Write a 400 error response instead of the original response
						c.Writer = originalWriter
						c.Writer.WriteHeader(http.StatusBadRequest)
						_ = json.NewEncoder(c.Writer).Encode(gin.H{
							"error":   "Response validation failed",
							"message": "API response does not match the specification",
							"method":  c.Request.Method,
							"path":    c.Request.URL.Path,
							"schema":  schemaName,
							"details": err.Error(),
						})
						return
					}
					// Add success tracing attributes
					span.SetAttributes(
						observability.AttributeTypeFilter("validation_passed"),
					)

					// Write the buffered response to the real writer
					c.Writer = originalWriter
					c.Writer.WriteHeader(statusCode)
					_, _ = c.Writer.Write(responseWriter.body.Bytes())
					return
				}
				// No schema found for this endpoint
				span.SetAttributes(
					observability.AttributeTypeFilter("no_schema_found"),
				)

				logger.Warn(ctx, "No schema found for endpoint", map[string]interface{}{
					"method": c.Request.Method,
					"path":   c.Request.URL.Path,
				})
				// Write the buffered response to the real writer
				c.Writer = originalWriter
				c.Writer.WriteHeader(statusCode)
				_, _ = c.Writer.Write(responseWriter.body.Bytes())
				return
			}
			// Failed to parse JSON response
			span.SetAttributes(
				observability.AttributeTypeFilter("json_parse_failed"),
			)

			logger.Error(ctx, "Failed to parse JSON response", err, map[string]interface{}{
				"method": c.Request.Method,
				"path":   c.Request.URL.Path,
			})
			// Write the buffered response to the real writer
			c.Writer = originalWriter
			c.Writer.WriteHeader(statusCode)
			_, _ = c.Writer.Write(responseWriter.body.Bytes())
			return
		}
		// Non-200 status code, skip validation
		span.SetAttributes(
			observability.AttributeTypeFilter("non_200_status"),
		)
		// Write the buffered response to the real writer
		c.Writer = originalWriter
		c.Writer.WriteHeader(statusCode)
		_, _ = c.Writer.Write(responseWriter.body.Bytes())
	}
}

// responseCaptureWriter captures the response body for validation
// Add a status field to track the status code
type responseCaptureWriter struct {
	gin.ResponseWriter
	body   *bytes.Buffer
	status int
}

func (w *responseCaptureWriter) WriteHeader(statusCode int) {
	w.status = statusCode
	w.ResponseWriter.WriteHeader(statusCode)
}

func (w *responseCaptureWriter) Write(b []byte) (int, error) {
	return w.body.Write(b)
}

func (w *responseCaptureWriter) Status() int {
	if w.status != 0 {
		return w.status
	}
	return w.ResponseWriter.Status()
}

// isUnvalidatedPath reports whether a path bypasses schema validation.
// These are operational endpoints that are not part of the documented API.
func isUnvalidatedPath(path string) bool {
	passThrough := []string{
		"/swagger.yaml",
		"/health",
		"/configz",
		"/",
	}

	for _, p := range passThrough {
		if path == p {
			return true
		}
	}

	return false
}

// isMultipartRequest reports whether the request carries a multipart body.
// Image doubts, voice doubts and content uploads send files, not JSON.
func isMultipartRequest(c *gin.Context) bool {
	return strings.HasPrefix(c.ContentType(), "multipart/form-data")
}

// RequestValidationMiddleware creates middleware that prevents undocumented API calls
func RequestValidationMiddleware(logger *observability.Logger) gin.HandlerFunc {
	// Initialize schema loader once
	schemaLoader := initSchemaLoader()

	return func(c *gin.Context) {
		// Start tracing span for request validation
		ctx, span := observability.TraceHandlerFunction(c.Request.Context(), "request_validation")
		defer span.End()

		// Check if the endpoint exists in the swagger spec
		path := c.Request.URL.Path
		method := c.Request.Method

		logger.Debug(ctx, "Request validation middleware called", map[string]interface{}{
			"method": method,
			"path":   path,
		})

		// Add tracing attributes
		span.SetAttributes(
			observability.AttributeSearch(path),
			observability.AttributeTypeFilter(method),
		)

		if isUnvalidatedPath(path) {
			c.Next()
			return
		}

		// Check if this endpoint is documented in swagger
		if !schemaLoader.IsEndpointDocumented(path, method) {
			// Log the undocumented API call
			logger.Warn(ctx, "Undocumented API call attempted", map[string]interface{}{
				"method":     method,
				"path":       path,
				"ip":         c.ClientIP(),
				"user_agent": c.Request.UserAgent(),
			})

			// Return 404 for undocumented endpoints
			c.JSON(http.StatusNotFound, gin.H{
				"error":   "Endpoint not found",
				"message": "The requested endpoint is not documented in the API specification",
			})
			c.Abort()
			return
		}

		// Endpoint is documented, continue
		span.SetAttributes(
			observability.AttributeTypeFilter("endpoint_documented"),
		)

		// Validate JSON bodies on mutating requests. File uploads carry
		// multipart bodies with no JSON schema to check.
		if (method == "POST" || method == "PUT" || method == "PATCH") && !isMultipartRequest(c) {
			schemaName := schemaLoader.DetermineRequestSchemaFromPath(path, method)
			if schemaName == "" {
				logger.Debug(ctx, "No request schema for endpoint", map[string]interface{}{
					"method": method,
					"path":   path,
				})
			}

			body, err := c.GetRawData()
			if err == nil && len(body) > 0 {
				// Restore the request body so handlers can read it
				c.Request.Body = io.NopCloser(bytes.NewBuffer(body))

				if schemaName != "" {
					var requestData interface{}
					if err := json.Unmarshal(body, &requestData); err == nil {
						if err := schemaLoader.ValidateData(requestData, schemaName); err != nil {
							logger.Error(ctx, "Request validation failed", err, map[string]interface{}{
								"method":      method,
								"path":        path,
								"schema_name": schemaName,
								"raw_body":    string(body),
							})
							span.SetAttributes(
								observability.AttributeTypeFilter("validation_failed"),
								observability.AttributeTypeFilter(schemaName),
							)
							c.JSON(http.StatusBadRequest, gin.H{
								"error":   "Invalid request data",
								"message": "Request data does not match the API specification",
								"method":  method,
								"path":    path,
								"schema":  schemaName,
								"details": err.Error(),
							})
							c.Abort()
							return
						}
					}

					// Restore again after validation consumed the buffer
					c.Request.Body = io.NopCloser(bytes.NewBuffer(body))
				}
			}
		}

		// Continue to the next handler
		c.Next()
	}
}
