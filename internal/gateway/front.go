package gateway

import (
	"encoding/base64"
	"encoding/json"
	stderrors "errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/aws/aws-lambda-go/events"
	"github.com/julienschmidt/httprouter"
	"github.com/tidwall/gjson"

	"github.com/wudi/hitcounter/config"
	"github.com/wudi/hitcounter/internal/errors"
	"github.com/wudi/hitcounter/internal/middleware"
	"github.com/wudi/hitcounter/internal/payload"
)

var frontMethods = []string{
	http.MethodGet, http.MethodHead, http.MethodPost, http.MethodPut,
	http.MethodPatch, http.MethodDelete, http.MethodOptions,
}

// Handler returns the HTTP front: every request on every path becomes one
// proxy invocation.
func (g *Gateway) Handler() http.Handler {
	r := httprouter.New()
	r.RedirectTrailingSlash = false
	r.RedirectFixedPath = false
	r.HandleOPTIONS = false

	h := http.HandlerFunc(g.serveInvocation)
	for _, m := range frontMethods {
		r.Handler(m, "/*path", h)
	}
	r.MethodNotAllowed = http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		errors.WriteStatus(w, http.StatusMethodNotAllowed, middleware.RequestIDFromContext(req.Context()))
	})

	return middleware.NewBuilder().
		Use(middleware.RequestID()).
		Use(middleware.Logging()).
		Use(middleware.Recovery()).
		UseIf(g.tracer.IsEnabled(), g.tracer.Middleware()).
		Handler(r)
}

func (g *Gateway) serveInvocation(w http.ResponseWriter, r *http.Request) {
	requestID := middleware.RequestIDFromContext(r.Context())

	body, err := readBody(w, r, g.config.Listener.MaxBodySize)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if stderrors.As(err, &tooLarge) {
			errors.WriteStatus(w, http.StatusRequestEntityTooLarge, requestID)
			return
		}
		errors.WriteStatus(w, http.StatusBadRequest, requestID)
		return
	}

	event, err := json.Marshal(buildEvent(r, body, requestID))
	if err != nil {
		errors.WriteStatus(w, http.StatusInternalServerError, requestID)
		return
	}

	resp, err := g.proxy.Handle(r.Context(), payload.Request(event))
	if err != nil {
		pe, ok := errors.As(err)
		if !ok {
			errors.WriteStatus(w, http.StatusInternalServerError, requestID)
			return
		}
		pe.WithRequestID(requestID).WriteJSON(w)
		return
	}

	if g.config.Listener.ResponseMode == config.ResponseModeAPIGateway && writeProxyResponse(w, resp) {
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write(resp)
}

func readBody(w http.ResponseWriter, r *http.Request, limit int64) ([]byte, error) {
	if r.Body == nil {
		return nil, nil
	}
	var body io.Reader = r.Body
	if limit > 0 {
		body = http.MaxBytesReader(w, r.Body, limit)
	}
	return io.ReadAll(body)
}

// buildEvent converts r into an API Gateway REST proxy event.
func buildEvent(r *http.Request, body []byte, requestID string) events.APIGatewayProxyRequest {
	path := r.URL.Path
	if path == "" {
		path = "/"
	}

	headers := make(map[string]string, len(r.Header))
	multiHeaders := make(map[string][]string, len(r.Header))
	for k, vs := range r.Header {
		headers[k] = strings.Join(vs, ",")
		multiHeaders[k] = vs
	}
	if r.Host != "" {
		headers["Host"] = r.Host
		multiHeaders["Host"] = []string{r.Host}
	}

	var query map[string]string
	var multiQuery map[string][]string
	if q := r.URL.Query(); len(q) > 0 {
		query = make(map[string]string, len(q))
		multiQuery = make(map[string][]string, len(q))
		for k, vs := range q {
			query[k] = vs[len(vs)-1]
			multiQuery[k] = vs
		}
	}

	event := events.APIGatewayProxyRequest{
		Resource:                        "/{proxy+}",
		Path:                            path,
		HTTPMethod:                      r.Method,
		Headers:                         headers,
		MultiValueHeaders:               multiHeaders,
		QueryStringParameters:           query,
		MultiValueQueryStringParameters: multiQuery,
		PathParameters:                  map[string]string{"proxy": strings.TrimPrefix(path, "/")},
		RequestContext: events.APIGatewayProxyRequestContext{
			RequestID:        requestID,
			ResourcePath:     "/{proxy+}",
			Path:             path,
			HTTPMethod:       r.Method,
			Protocol:         r.Proto,
			RequestTimeEpoch: time.Now().UnixMilli(),
			Identity: events.APIGatewayRequestIdentity{
				SourceIP:  sourceIP(r),
				UserAgent: r.UserAgent(),
			},
		},
	}

	if len(body) > 0 {
		if utf8.Valid(body) {
			event.Body = string(body)
		} else {
			event.Body = base64.StdEncoding.EncodeToString(body)
			event.IsBase64Encoded = true
		}
	}
	return event
}

func sourceIP(r *http.Request) string {
	addr := r.RemoteAddr
	if i := strings.LastIndexByte(addr, ':'); i > 0 {
		addr = addr[:i]
	}
	return strings.Trim(addr, "[]")
}

// writeProxyResponse renders an API Gateway proxy response. It reports false,
// writing nothing, when resp is not shaped like one.
func writeProxyResponse(w http.ResponseWriter, resp payload.Response) bool {
	root := gjson.ParseBytes(resp)
	if !root.IsObject() {
		return false
	}
	status := root.Get("statusCode")
	if status.Type != gjson.Number {
		return false
	}
	code := int(status.Int())
	if code < 100 || code > 999 {
		return false
	}

	body := []byte(root.Get("body").String())
	if root.Get("isBase64Encoded").Bool() {
		decoded, err := base64.StdEncoding.DecodeString(string(body))
		if err != nil {
			return false
		}
		body = decoded
	}

	h := w.Header()
	root.Get("multiValueHeaders").ForEach(func(k, v gjson.Result) bool {
		v.ForEach(func(_, hv gjson.Result) bool {
			h.Add(k.String(), hv.String())
			return true
		})
		return true
	})
	root.Get("headers").ForEach(func(k, v gjson.Result) bool {
		h.Set(k.String(), v.String())
		return true
	})
	h.Set("Content-Length", strconv.Itoa(len(body)))

	w.WriteHeader(code)
	w.Write(body)
	return true
}
