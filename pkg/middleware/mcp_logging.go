package middleware

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/dock-ai/registry/pkg/logging"
)

const (
	// maxArgumentLogLength caps logged string arguments.
	maxArgumentLogLength = 200

	// mcpPeekLimit bounds how much of a request or response body is held
	// for JSON-RPC inspection. Larger bodies are passed through and logged
	// without method details.
	mcpPeekLimit = 64 << 10
)

// Outcomes reported in the "outcome" field of the MCP call log line.
const (
	mcpOutcomeOK        = "ok"
	mcpOutcomeRPCError  = "rpc_error"
	mcpOutcomeToolError = "tool_error"
	mcpOutcomeUnknown   = "unparsed"
)

var sensitiveArgumentKeys = []string{"password", "secret", "token", "key", "credential", "authorization"}

// MCPRequestLogger returns middleware that writes one debug line per MCP
// JSON-RPC exchange: method, tool, sanitized arguments, HTTP status, duration
// and whether the call ended in a protocol error or a tool error result.
// A nil logger disables it.
func MCPRequestLogger(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if logger == nil {
			return next
		}
		log := logger.Named("mcp-http")

		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			peek, err := io.ReadAll(io.LimitReader(r.Body, mcpPeekLimit+1))
			if err != nil {
				log.Warn("Failed to read MCP request body", logging.Error(err))
				http.Error(w, "failed to read request body", http.StatusBadRequest)
				return
			}
			r.Body = readCloser{Reader: io.MultiReader(bytes.NewReader(peek), r.Body), Closer: r.Body}

			var req jsonRPCRequest
			if len(peek) <= mcpPeekLimit {
				_ = json.Unmarshal(peek, &req)
			}

			rec := &mcpRecorder{ResponseWriter: w, status: http.StatusOK}
			start := time.Now()
			next.ServeHTTP(rec, r)

			log.Debug("MCP call",
				zap.String("method", req.Method),
				zap.String("tool", req.Params.Name),
				zap.Any("arguments", sanitizeArguments(req.Params.Arguments)),
				zap.Int("status", rec.status),
				zap.String("outcome", rec.outcome()),
				zap.Duration("duration", time.Since(start)),
			)
		})
	}
}

type readCloser struct {
	io.Reader
	io.Closer
}

type jsonRPCRequest struct {
	Method string `json:"method"`
	Params struct {
		Name      string         `json:"name"`
		Arguments map[string]any `json:"arguments"`
	} `json:"params"`
}

type jsonRPCResponse struct {
	Result *struct {
		IsError bool `json:"isError"`
	} `json:"result"`
	Error *struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// mcpRecorder keeps the status and the first mcpPeekLimit bytes of the body.
type mcpRecorder struct {
	http.ResponseWriter
	status    int
	body      bytes.Buffer
	truncated bool
}

func (r *mcpRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (r *mcpRecorder) Write(b []byte) (int, error) {
	if room := mcpPeekLimit - r.body.Len(); room > 0 {
		if len(b) > room {
			r.body.Write(b[:room])
			r.truncated = true
		} else {
			r.body.Write(b)
		}
	} else if len(b) > 0 {
		r.truncated = true
	}
	return r.ResponseWriter.Write(b)
}

func (r *mcpRecorder) Flush() {
	if f, ok := r.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (r *mcpRecorder) outcome() string {
	if r.truncated || r.body.Len() == 0 {
		return mcpOutcomeUnknown
	}
	var resp jsonRPCResponse
	if err := json.Unmarshal(r.body.Bytes(), &resp); err != nil {
		return mcpOutcomeUnknown
	}
	switch {
	case resp.Error != nil:
		return mcpOutcomeRPCError
	case resp.Result != nil && resp.Result.IsError:
		return mcpOutcomeToolError
	default:
		return mcpOutcomeOK
	}
}

// sanitizeArguments redacts credential-like keys and truncates long strings.
func sanitizeArguments(args map[string]any) map[string]any {
	if args == nil {
		return nil
	}
	out := make(map[string]any, len(args))
	for k, v := range args {
		if isSensitiveKey(k) {
			out[k] = logging.RedactedText
			continue
		}
		if s, ok := v.(string); ok {
			out[k] = logging.TruncateString(logging.SanitizeString(s), maxArgumentLogLength)
			continue
		}
		out[k] = v
	}
	return out
}

func isSensitiveKey(k string) bool {
	k = strings.ToLower(k)
	for _, s := range sensitiveArgumentKeys {
		if strings.Contains(k, s) {
			return true
		}
	}
	return false
}
