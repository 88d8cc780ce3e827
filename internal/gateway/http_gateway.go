package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"strings"
	"sync"
	"time"

	"smartpdf-web/internal/pkg/logger"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const (
	uploadPath     = "/upload_pdfs/"
	chatPath       = "/chat/"
	endSessionPath = "/end_session/"

	maxResponseBytes = 10 * 1024 * 1024
	defaultPDFType   = "application/pdf"
	logModule        = "Gateway"
)

var (
	tracer       = otel.Tracer("smartpdf-web/gateway")
	quoteEscaper = strings.NewReplacer("\\", "\\\\", `"`, "\\\"")
)

// HTTPGateway talks to the backend REST surface.
type HTTPGateway struct {
	BaseURL         string
	Client          *http.Client
	DetachedTimeout time.Duration

	logger logger.ILogger

	// Detached terminations in flight; idle closes when the count hits zero.
	mu       sync.Mutex
	inFlight int
	idle     chan struct{}
}

// Ensure HTTPGateway implements Gateway
var _ Gateway = &HTTPGateway{}

func NewHTTPGateway(baseURL string, detachedTimeout time.Duration, log logger.ILogger) *HTTPGateway {
	if detachedTimeout <= 0 {
		detachedTimeout = 5 * time.Second
	}
	if log == nil {
		log = logger.NewNopLogger()
	}
	return &HTTPGateway{
		BaseURL: strings.TrimRight(baseURL, "/"),
		// No client-wide timeout: every call is bounded by its context.
		Client:          &http.Client{},
		DetachedTimeout: detachedTimeout,
		logger:          log,
	}
}

// --- Wire shapes ---

type uploadResponse struct {
	SessionID *string `json:"session_id"`
}

type chatResponse struct {
	Answer          *string  `json:"answer"`
	SourceDocuments []Source `json:"source_documents"`
}

type ackResponse struct {
	Message string `json:"message"`
}

// errorResponse covers both the backend's own {"message"} bodies and the
// framework's {"detail"} validation bodies.
type errorResponse struct {
	Message string          `json:"message"`
	Detail  json.RawMessage `json:"detail"`
}

// --- Interface Implementation ---

func (g *HTTPGateway) UploadDocuments(ctx context.Context, docs []Document) (UploadResult, error) {
	ctx, span := tracer.Start(ctx, "gateway.UploadDocuments")
	defer span.End()
	span.SetAttributes(attribute.Int("gateway.documents", len(docs)))

	if len(docs) == 0 {
		// Callers guard this; reaching here is a programming error.
		return UploadResult{}, fail(span, protocolError(OpUpload, "no documents to upload"))
	}

	body, contentType, err := encodeDocuments(docs)
	if err != nil {
		return UploadResult{}, fail(span, protocolError(OpUpload, "encode multipart: %v", err))
	}

	raw, err := g.post(ctx, OpUpload, uploadPath, contentType, body)
	if err != nil {
		return UploadResult{}, fail(span, err)
	}

	var res uploadResponse
	if err := json.Unmarshal(raw, &res); err != nil {
		return UploadResult{}, fail(span, protocolError(OpUpload, "unmarshal response: %v", err))
	}
	if res.SessionID == nil || *res.SessionID == "" {
		return UploadResult{}, fail(span, protocolError(OpUpload, "response has no session_id"))
	}

	span.SetAttributes(attribute.String("gateway.session_id", *res.SessionID))
	g.logger.Info(logModule, "Documents uploaded", map[string]interface{}{
		"documents":  len(docs),
		"session_id": *res.SessionID,
	})
	return UploadResult{SessionID: *res.SessionID}, nil
}

func (g *HTTPGateway) SubmitQuery(ctx context.Context, sessionID, query string) (ChatResult, error) {
	ctx, span := tracer.Start(ctx, "gateway.SubmitQuery")
	defer span.End()
	span.SetAttributes(attribute.String("gateway.session_id", sessionID))

	form := url.Values{}
	form.Set("session_id", sessionID)
	form.Set("query", query)

	raw, err := g.post(ctx, OpChat, chatPath, "application/x-www-form-urlencoded", strings.NewReader(form.Encode()))
	if err != nil {
		return ChatResult{}, fail(span, err)
	}

	var res chatResponse
	if err := json.Unmarshal(raw, &res); err != nil {
		return ChatResult{}, fail(span, protocolError(OpChat, "unmarshal response: %v", err))
	}
	if res.Answer == nil {
		return ChatResult{}, fail(span, protocolError(OpChat, "response has no answer"))
	}

	return ChatResult{Answer: *res.Answer, Sources: res.SourceDocuments}, nil
}

func (g *HTTPGateway) TerminateSession(ctx context.Context, sessionID string) (Ack, error) {
	ctx, span := tracer.Start(ctx, "gateway.TerminateSession")
	defer span.End()
	span.SetAttributes(attribute.String("gateway.session_id", sessionID))

	form := url.Values{}
	form.Set("session_id", sessionID)

	raw, err := g.post(ctx, OpTerminate, endSessionPath, "application/x-www-form-urlencoded", strings.NewReader(form.Encode()))
	if err != nil {
		return Ack{}, fail(span, err)
	}

	var res ackResponse
	if len(bytes.TrimSpace(raw)) > 0 {
		if err := json.Unmarshal(raw, &res); err != nil {
			return Ack{}, fail(span, protocolError(OpTerminate, "unmarshal response: %v", err))
		}
	}

	g.logger.Info(logModule, "Session terminated", map[string]interface{}{
		"session_id": sessionID,
		"message":    res.Message,
	})
	return Ack{Message: res.Message}, nil
}

func (g *HTTPGateway) TerminateDetached(sessionID string) {
	if sessionID == "" {
		return
	}

	g.detachedStarted()
	go func() {
		defer g.detachedDone()

		ctx, cancel := context.WithTimeout(context.Background(), g.DetachedTimeout)
		defer cancel()

		if _, err := g.TerminateSession(ctx, sessionID); err != nil {
			g.logger.Warn(logModule, "Detached termination failed", map[string]interface{}{
				"session_id": sessionID,
				"error":      err.Error(),
			})
		}
	}()
}

// Drain waits up to timeout for detached terminations still in flight.
// It reports whether all of them finished. Drain can be called repeatedly;
// a timed-out call leaves nothing running behind it.
func (g *HTTPGateway) Drain(timeout time.Duration) bool {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-g.idleCh():
		return true
	case <-timer.C:
		return false
	}
}

func (g *HTTPGateway) detachedStarted() {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.inFlight == 0 {
		g.idle = make(chan struct{})
	}
	g.inFlight++
}

func (g *HTTPGateway) detachedDone() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.inFlight--
	if g.inFlight == 0 {
		close(g.idle)
	}
}

func (g *HTTPGateway) idleCh() <-chan struct{} {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.inFlight == 0 {
		done := make(chan struct{})
		close(done)
		return done
	}
	return g.idle
}

// post sends one request and returns the body of a 2xx response.
func (g *HTTPGateway) post(ctx context.Context, op Op, path, contentType string, body io.Reader) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.BaseURL+path, body)
	if err != nil {
		return nil, networkError(op, fmt.Errorf("create request: %w", err))
	}
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Accept", "application/json")

	resp, err := g.Client.Do(req)
	if err != nil {
		g.logger.Warn(logModule, "Backend unreachable", map[string]interface{}{
			"op":    string(op),
			"error": err.Error(),
		})
		return nil, networkError(op, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, networkError(op, fmt.Errorf("read response: %w", err))
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		g.logger.Warn(logModule, "Backend returned error status", map[string]interface{}{
			"op":     string(op),
			"status": resp.StatusCode,
		})
		return nil, serverError(op, resp.StatusCode, errorDetail(raw))
	}

	return raw, nil
}

func encodeDocuments(docs []Document) (io.Reader, string, error) {
	buf := &bytes.Buffer{}
	w := multipart.NewWriter(buf)

	for _, doc := range docs {
		contentType := doc.ContentType
		if contentType == "" {
			contentType = defaultPDFType
		}

		h := make(textproto.MIMEHeader)
		h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="files"; filename="%s"`, quoteEscaper.Replace(doc.Name)))
		h.Set("Content-Type", contentType)

		part, err := w.CreatePart(h)
		if err != nil {
			return nil, "", err
		}
		if _, err := part.Write(doc.Data); err != nil {
			return nil, "", err
		}
	}

	if err := w.Close(); err != nil {
		return nil, "", err
	}
	return buf, w.FormDataContentType(), nil
}

func errorDetail(raw []byte) string {
	var res errorResponse
	if err := json.Unmarshal(raw, &res); err != nil {
		return ""
	}
	if res.Message != "" {
		return res.Message
	}

	var detail string
	if err := json.Unmarshal(res.Detail, &detail); err == nil {
		return detail
	}
	return ""
}

func fail(span trace.Span, err error) error {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	return err
}
