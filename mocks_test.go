package auth_test

import (
	"context"
	"encoding/json"

	"github.com/goliatone/go-router"
)

// fakeContext is an in-memory router.Context for handler tests. It records
// whatever the code under test writes: status, JSON body, cookies, locals,
// redirects.
type fakeContext struct {
	ctx     context.Context
	headers map[string]string
	queries map[string]string
	params  map[string]string
	cookies map[string]string
	locals  map[any]any
	body    []byte

	status       int
	jsonStatus   int
	jsonBody     any
	sentString   string
	sentBytes    []byte
	renderedView string
	redirectedTo string
	setCookies   []*router.Cookie
	nextCalled   bool

	method      string
	path        string
	originalURL string
	referer     string
}

func newFakeContext() *fakeContext {
	return &fakeContext{
		ctx:     context.Background(),
		headers: map[string]string{},
		queries: map[string]string{},
		params:  map[string]string{},
		cookies: map[string]string{},
		locals:  map[any]any{},
	}
}

func (f *fakeContext) withJSONBody(v any) *fakeContext {
	raw, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	f.body = raw
	return f
}

func (f *fakeContext) withBearer(token string) *fakeContext {
	f.headers["Authorization"] = "Bearer " + token
	return f
}

func (f *fakeContext) Next() error {
	f.nextCalled = true
	return nil
}

func (f *fakeContext) Context() context.Context {
	return f.ctx
}

func (f *fakeContext) SetContext(ctx context.Context) {
	f.ctx = ctx
}

func (f *fakeContext) Path() string {
	return f.path
}

func (f *fakeContext) Method() string {
	return f.method
}

func (f *fakeContext) Body() []byte {
	return f.body
}

func (f *fakeContext) Status(code int) router.Context {
	f.status = code
	return f
}

func (f *fakeContext) SendString(s string) error {
	f.sentString = s
	return nil
}

func (f *fakeContext) Send(b []byte) error {
	f.sentBytes = b
	return nil
}

func (f *fakeContext) JSON(code int, val any) error {
	f.jsonStatus = code
	f.jsonBody = val
	return nil
}

func (f *fakeContext) NoContent(code int) error {
	f.status = code
	return nil
}

func (f *fakeContext) Render(name string, bind any, layout ...string) error {
	f.renderedView = name
	return nil
}

func (f *fakeContext) Redirect(path string, status ...int) error {
	f.redirectedTo = path
	if len(status) > 0 {
		f.status = status[0]
	}
	return nil
}

func (f *fakeContext) RedirectToRoute(name string, data router.ViewContext, status ...int) error {
	f.redirectedTo = name
	return nil
}

func (f *fakeContext) RedirectBack(fallback string, status ...int) error {
	f.redirectedTo = fallback
	return nil
}

func (f *fakeContext) SetHeader(key, val string) router.Context {
	f.headers[key] = val
	return f
}

func (f *fakeContext) Header(key string) string {
	return f.headers[key]
}

func (f *fakeContext) Get(key string, defaultValue any) any {
	if val, ok := f.locals[key]; ok {
		return val
	}
	return defaultValue
}

func (f *fakeContext) GetBool(key string, defaultValue bool) bool {
	if val, ok := f.locals[key].(bool); ok {
		return val
	}
	return defaultValue
}

func (f *fakeContext) GetInt(key string, def int) int {
	if val, ok := f.locals[key].(int); ok {
		return val
	}
	return def
}

func (f *fakeContext) Set(key string, val any) {
	f.locals[key] = val
}

func (f *fakeContext) Bind(i any) error {
	return json.Unmarshal(f.body, i)
}

func (f *fakeContext) BindJSON(i any) error {
	return json.Unmarshal(f.body, i)
}

func (f *fakeContext) BindXML(i any) error {
	return nil
}

func (f *fakeContext) BindQuery(i any) error {
	return nil
}

func (f *fakeContext) CookieParser(i any) error {
	return nil
}

func (f *fakeContext) Cookie(cookie *router.Cookie) {
	f.setCookies = append(f.setCookies, cookie)
}

func (f *fakeContext) Cookies(key string, defaultValue ...string) string {
	if val, ok := f.cookies[key]; ok {
		return val
	}
	if len(defaultValue) > 0 {
		return defaultValue[0]
	}
	return ""
}

func (f *fakeContext) Param(key string, defaultValue ...string) string {
	if val, ok := f.params[key]; ok {
		return val
	}
	if len(defaultValue) > 0 {
		return defaultValue[0]
	}
	return ""
}

func (f *fakeContext) ParamsInt(key string, defaultValue int) int {
	return defaultValue
}

func (f *fakeContext) Query(key string, defaultValue string) string {
	if val, ok := f.queries[key]; ok {
		return val
	}
	return defaultValue
}

func (f *fakeContext) QueryInt(key string, defaultValue int) int {
	return defaultValue
}

func (f *fakeContext) Queries() map[string]string {
	return f.queries
}

func (f *fakeContext) GetString(key string, defaultValue string) string {
	if val, ok := f.headers[key]; ok {
		return val
	}
	return defaultValue
}

func (f *fakeContext) Locals(key any, value ...any) any {
	if len(value) > 0 {
		f.locals[key] = value[0]
		return nil
	}
	return f.locals[key]
}

func (f *fakeContext) OriginalURL() string {
	return f.originalURL
}

func (f *fakeContext) OnNext(callback func() error) {}

func (f *fakeContext) Referer() string {
	return f.referer
}
