package posts

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"sort"
	"strings"
	"testing"
	"time"

	"Postboard/src/core/cache"
	"Postboard/src/core/models"
	"Postboard/src/core/testutil"
	"Postboard/src/modules/notifications"
	"Postboard/src/modules/taglinks"
	"Postboard/src/utils"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

type envelope struct {
	Status  string          `json:"status"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

type recorder struct {
	events []notifications.Event
}

func (r *recorder) Publish(e notifications.Event) { r.events = append(r.events, e) }

type fixture struct {
	app    *fiber.App
	db     *gorm.DB
	cache  *cache.Memory
	events *recorder
}

func newFixture(t *testing.T, up utils.Uploader) *fixture {
	t.Helper()

	db := testutil.NewDB(t)
	mem := cache.NewMemory(time.Minute)
	rec := &recorder{}
	if up == nil {
		up = utils.NewLocalUploader(t.TempDir(), "/images")
	}
	h := NewHandler(db, mem, up, rec)

	app := fiber.New()
	app.Get("/posts", h.GetPosts)
	app.Get("/posts/:id", h.GetPostByID)
	app.Post("/posts", h.CreatePost)
	app.Put("/posts/:id", h.UpdatePost)
	app.Patch("/posts/:id", h.UpdatePost)
	app.Delete("/posts/:id", h.DeletePost)

	return &fixture{app: app, db: db, cache: mem, events: rec}
}

func (f *fixture) do(t *testing.T, req *http.Request) (int, envelope, []byte) {
	t.Helper()

	resp, err := f.app.Test(req, -1)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	raw, _ := io.ReadAll(resp.Body)
	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		t.Fatalf("invalid response %q: %v", raw, err)
	}
	return resp.StatusCode, env, raw
}

func jsonRequest(method, target string, body interface{}) *http.Request {
	data, _ := json.Marshal(body)
	req := httptest.NewRequest(method, target, bytes.NewReader(data))
	req.Header.Set("Content-Type", "application/json")
	return req
}

func decodeDetail(t *testing.T, env envelope) PostDetail {
	t.Helper()
	var d PostDetail
	if err := json.Unmarshal(env.Data, &d); err != nil {
		t.Fatalf("invalid post detail %s: %v", env.Data, err)
	}
	return d
}

func tagNames(d PostDetail) []string {
	names := make([]string, 0, len(d.Tags))
	for _, tag := range d.Tags {
		names = append(names, tag.Name)
	}
	sort.Strings(names)
	return names
}

func TestCreatePostNormalizesTags(t *testing.T) {
	f := newFixture(t, nil)
	user := testutil.CreateUser(t, f.db, "ana")

	status, env, _ := f.do(t, jsonRequest("POST", "/posts", fiber.Map{
		"description": "hello",
		"user":        user.ID.String(),
		"tags":        []string{"A", "a ", "B"},
	}))
	if status != fiber.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", status, env.Message)
	}

	d := decodeDetail(t, env)
	if got := strings.Join(tagNames(d), ","); got != "a,b" {
		t.Errorf("expected tags a,b, got %s", got)
	}
	if d.User == nil || d.User.NickName != "ana" {
		t.Errorf("user not resolved: %+v", d.User)
	}

	var tags []models.Tag
	f.db.Order("name").Find(&tags)
	if len(tags) != 2 || tags[0].Name != "a" || tags[1].Name != "b" {
		t.Errorf("unexpected stored tags: %+v", tags)
	}

	for _, tag := range tags {
		posts, _ := taglinks.PostIDsForTag(f.db, tag.ID)
		if len(posts) != 1 || posts[0] != d.ID {
			t.Errorf("tag %s does not reference the post: %v", tag.Name, posts)
		}
	}

	if len(f.events.events) != 1 || f.events.events[0].Type != notifications.PostCreated {
		t.Errorf("expected a post.created event, got %+v", f.events.events)
	}
}

func TestCreatePostReusesExistingTags(t *testing.T) {
	f := newFixture(t, nil)
	user := testutil.CreateUser(t, f.db, "ana")
	existing := testutil.CreateTag(t, f.db, "news")

	status, env, _ := f.do(t, jsonRequest("POST", "/posts", fiber.Map{
		"description": "hello",
		"user":        user.ID.String(),
		"tags":        `["NEWS"]`,
	}))
	if status != fiber.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", status, env.Message)
	}

	d := decodeDetail(t, env)
	if len(d.Tags) != 1 || d.Tags[0].ID != existing.ID {
		t.Errorf("expected the existing tag to be reused: %+v", d.Tags)
	}
}

func TestCreatePostValidation(t *testing.T) {
	f := newFixture(t, nil)
	user := testutil.CreateUser(t, f.db, "ana")

	cases := []struct {
		name   string
		body   fiber.Map
		status int
	}{
		{"missing description", fiber.Map{"user": user.ID.String()}, fiber.StatusBadRequest},
		{"missing user", fiber.Map{"description": "hi"}, fiber.StatusBadRequest},
		{"malformed user", fiber.Map{"description": "hi", "user": "42"}, fiber.StatusBadRequest},
		{"unknown user", fiber.Map{"description": "hi", "user": uuid.NewString()}, fiber.StatusNotFound},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			status, env, _ := f.do(t, jsonRequest("POST", "/posts", tc.body))
			if status != tc.status || env.Status != "error" {
				t.Errorf("expected %d error, got %d %+v", tc.status, status, env)
			}
		})
	}

	var n int64
	f.db.Model(&models.Post{}).Count(&n)
	if n != 0 {
		t.Errorf("rejected requests created %d posts", n)
	}
}

func multipartRequest(t *testing.T, fields map[string][]string, files map[string]string) *http.Request {
	t.Helper()

	body := &bytes.Buffer{}
	w := multipart.NewWriter(body)
	for k, values := range fields {
		for _, v := range values {
			w.WriteField(k, v)
		}
	}
	for name, content := range files {
		part, err := w.CreateFormFile("images", name)
		if err != nil {
			t.Fatal(err)
		}
		part.Write([]byte(content))
	}
	w.Close()

	req := httptest.NewRequest("POST", "/posts", body)
	req.Header.Set("Content-Type", w.FormDataContentType())
	return req
}

func TestCreatePostMultipart(t *testing.T) {
	f := newFixture(t, nil)
	user := testutil.CreateUser(t, f.db, "ana")

	req := multipartRequest(t, map[string][]string{
		"description": {"with picture"},
		"user":        {user.ID.String()},
		"tags":        {`["Go","go"]`},
	}, map[string]string{"cat.png": "png-bytes"})

	status, env, _ := f.do(t, req)
	if status != fiber.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", status, env.Message)
	}

	d := decodeDetail(t, env)
	if len(d.Images) != 1 || !strings.HasSuffix(d.Images[0].URL, "_cat.png") {
		t.Errorf("image not attached: %+v", d.Images)
	}
	if got := strings.Join(tagNames(d), ","); got != "go" {
		t.Errorf("expected tag go, got %s", got)
	}
}

func TestCreatePostMultipartTagList(t *testing.T) {
	f := newFixture(t, nil)
	user := testutil.CreateUser(t, f.db, "ana")

	req := multipartRequest(t, map[string][]string{
		"description": {"listed"},
		"user":        {user.ID.String()},
		"tags[]":      {"One", "two"},
	}, nil)

	status, env, _ := f.do(t, req)
	if status != fiber.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", status, env.Message)
	}
	if got := strings.Join(tagNames(decodeDetail(t, env)), ","); got != "one,two" {
		t.Errorf("expected tags one,two, got %s", got)
	}
}

type flakyUploader struct {
	inner   utils.Uploader
	uploads int
	failAt  int
	deleted []string
}

func (u *flakyUploader) Upload(ctx context.Context, fh *multipart.FileHeader) (utils.StoredFile, error) {
	u.uploads++
	if u.uploads == u.failAt {
		return utils.StoredFile{}, errors.New("storage unavailable")
	}
	return u.inner.Upload(ctx, fh)
}

func (u *flakyUploader) Delete(ctx context.Context, path string) error {
	u.deleted = append(u.deleted, path)
	return u.inner.Delete(ctx, path)
}

func TestCreatePostUploadFailureCleansUp(t *testing.T) {
	up := &flakyUploader{inner: utils.NewLocalUploader(t.TempDir(), "/images"), failAt: 2}
	f := newFixture(t, up)
	user := testutil.CreateUser(t, f.db, "ana")

	req := multipartRequest(t, map[string][]string{
		"description": {"two pictures"},
		"user":        {user.ID.String()},
		"tags":        {`["lost"]`},
	}, map[string]string{"a.png": "a", "b.png": "b"})

	status, _, _ := f.do(t, req)
	if status != fiber.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", status)
	}
	if len(up.deleted) != 1 {
		t.Errorf("expected the first upload to be removed, deleted %v", up.deleted)
	}

	var posts, tags int64
	f.db.Model(&models.Post{}).Count(&posts)
	f.db.Model(&models.Tag{}).Count(&tags)
	if posts != 0 || tags != 0 {
		t.Errorf("failed create left rows behind: %d posts, %d tags", posts, tags)
	}
}

func TestGetPostByIDUsesCache(t *testing.T) {
	f := newFixture(t, nil)
	user := testutil.CreateUser(t, f.db, "ana")
	post := testutil.CreatePost(t, f.db, user.ID, "cached")
	counter := testutil.CountQueries(t, f.db)

	status, first, firstRaw := f.do(t, httptest.NewRequest("GET", "/posts/"+post.ID.String(), nil))
	if status != fiber.StatusOK {
		t.Fatalf("expected 200, got %d: %s", status, first.Message)
	}
	if counter.Count() == 0 {
		t.Fatal("first fetch did not reach the database")
	}
	if _, ok := f.cache.Get(context.Background(), cache.PostKey(post.ID)); !ok {
		t.Fatal("post was not cached")
	}

	counter.Reset()
	status, _, secondRaw := f.do(t, httptest.NewRequest("GET", "/posts/"+post.ID.String(), nil))
	if status != fiber.StatusOK {
		t.Fatalf("expected 200, got %d", status)
	}
	if counter.Count() != 0 {
		t.Errorf("second fetch ran %d queries", counter.Count())
	}
	if !bytes.Equal(firstRaw, secondRaw) {
		t.Errorf("cached response differs:\n%s\n%s", firstRaw, secondRaw)
	}

	d := decodeDetail(t, first)
	if d.ID != post.ID || d.Description != "cached" || d.Tags == nil || d.Comments == nil {
		t.Errorf("unexpected detail: %+v", d)
	}
}

func TestGetPostByIDErrors(t *testing.T) {
	f := newFixture(t, nil)
	counter := testutil.CountQueries(t, f.db)

	status, env, _ := f.do(t, httptest.NewRequest("GET", "/posts/not-an-id", nil))
	if status != fiber.StatusBadRequest || env.Status != "error" {
		t.Errorf("expected 400, got %d %+v", status, env)
	}
	if counter.Count() != 0 {
		t.Errorf("malformed id reached the database %d times", counter.Count())
	}

	status, env, _ = f.do(t, httptest.NewRequest("GET", "/posts/"+uuid.NewString(), nil))
	if status != fiber.StatusNotFound || env.Message != "Post not found" {
		t.Errorf("expected 404, got %d %+v", status, env)
	}
	if f.cache.Len() != 0 {
		t.Error("missing post was cached")
	}
}

func TestGetPostsPagination(t *testing.T) {
	f := newFixture(t, nil)
	user := testutil.CreateUser(t, f.db, "ana")
	var ids []uuid.UUID
	for _, d := range []string{"one", "two", "three"} {
		ids = append(ids, testutil.CreatePost(t, f.db, user.ID, d).ID)
	}
	tag := testutil.CreateTag(t, f.db, "news")
	taglinks.Link(f.db, ids[2], tag.ID)

	status, env, _ := f.do(t, httptest.NewRequest("GET", "/posts", nil))
	if status != fiber.StatusOK {
		t.Fatalf("expected 200, got %d", status)
	}
	var page PostPage
	json.Unmarshal(env.Data, &page)
	if page.Page != 1 || page.Limit != 2 || page.TotalPosts != 3 || page.TotalPages != 2 {
		t.Errorf("unexpected page metadata: %+v", page)
	}
	if len(page.Posts) != 2 || page.Posts[0].ID != ids[2] || page.Posts[1].ID != ids[1] {
		t.Fatalf("expected newest first, got %+v", page.Posts)
	}
	if len(page.Posts[0].Tags) != 1 || page.Posts[0].Tags[0].Name != "news" {
		t.Errorf("tags not resolved: %+v", page.Posts[0].Tags)
	}

	_, env, _ = f.do(t, httptest.NewRequest("GET", "/posts?page=2&limit=2", nil))
	json.Unmarshal(env.Data, &page)
	if len(page.Posts) != 1 || page.Posts[0].ID != ids[0] {
		t.Errorf("unexpected second page: %+v", page.Posts)
	}

	_, env, _ = f.do(t, httptest.NewRequest("GET", "/posts?page=-1&limit=abc", nil))
	json.Unmarshal(env.Data, &page)
	if page.Page != 1 || page.Limit != 2 {
		t.Errorf("invalid pagination not defaulted: %+v", page)
	}
}

func TestUpdatePost(t *testing.T) {
	f := newFixture(t, nil)
	user := testutil.CreateUser(t, f.db, "ana")
	other := testutil.CreateUser(t, f.db, "bob")
	post := testutil.CreatePost(t, f.db, user.ID, "before")

	// warm the cache
	f.do(t, httptest.NewRequest("GET", "/posts/"+post.ID.String(), nil))

	status, env, _ := f.do(t, jsonRequest("PATCH", "/posts/"+post.ID.String(), fiber.Map{
		"description": "after",
		"user_id":     other.ID.String(),
		"id":          uuid.NewString(),
	}))
	if status != fiber.StatusOK {
		t.Fatalf("expected 200, got %d: %s", status, env.Message)
	}
	if _, ok := f.cache.Get(context.Background(), cache.PostKey(post.ID)); ok {
		t.Error("cache entry survived update")
	}

	var stored models.Post
	f.db.First(&stored, "id = ?", post.ID)
	if stored.Description != "after" || stored.UserID != user.ID {
		t.Errorf("unexpected stored post: %+v", stored)
	}

	_, env, _ = f.do(t, httptest.NewRequest("GET", "/posts/"+post.ID.String(), nil))
	if d := decodeDetail(t, env); d.Description != "after" {
		t.Errorf("stale post served after update: %+v", d)
	}

	status, _, _ = f.do(t, jsonRequest("PATCH", "/posts/"+post.ID.String(), fiber.Map{"description": "  "}))
	if status != fiber.StatusBadRequest {
		t.Errorf("expected 400 for a blank description, got %d", status)
	}
	status, _, _ = f.do(t, jsonRequest("PATCH", "/posts/"+uuid.NewString(), fiber.Map{"description": "x"}))
	if status != fiber.StatusNotFound {
		t.Errorf("expected 404 for a missing post, got %d", status)
	}
	status, _, _ = f.do(t, jsonRequest("PATCH", "/posts/nope", fiber.Map{"description": "x"}))
	if status != fiber.StatusBadRequest {
		t.Errorf("expected 400 for a malformed id, got %d", status)
	}
}

func TestDeletePost(t *testing.T) {
	f := newFixture(t, nil)
	user := testutil.CreateUser(t, f.db, "ana")
	post := testutil.CreatePost(t, f.db, user.ID, "doomed")
	tag := testutil.CreateTag(t, f.db, "news")
	taglinks.Link(f.db, post.ID, tag.ID)
	f.do(t, httptest.NewRequest("GET", "/posts/"+post.ID.String(), nil))

	status, env, _ := f.do(t, httptest.NewRequest("DELETE", "/posts/"+post.ID.String(), nil))
	if status != fiber.StatusOK {
		t.Fatalf("expected 200, got %d: %s", status, env.Message)
	}

	if posts, _ := taglinks.PostIDsForTag(f.db, tag.ID); len(posts) != 0 {
		t.Errorf("tag still references the deleted post: %v", posts)
	}
	if f.cache.Len() != 0 {
		t.Error("cache entry survived delete")
	}

	status, _, _ = f.do(t, httptest.NewRequest("GET", "/posts/"+post.ID.String(), nil))
	if status != fiber.StatusNotFound {
		t.Errorf("expected 404 after delete, got %d", status)
	}
	status, env, _ = f.do(t, httptest.NewRequest("DELETE", "/posts/"+post.ID.String(), nil))
	if status != fiber.StatusNotFound || env.Message != "Post not found" {
		t.Errorf("expected 404 Post not found for a second delete, got %d %+v", status, env)
	}

	last := f.events.events[len(f.events.events)-1]
	if last.Type != notifications.PostDeleted || last.PostID != post.ID {
		t.Errorf("expected a post.deleted event, got %+v", last)
	}
}

func TestMalformedPostIDSkipsDatabase(t *testing.T) {
	f := newFixture(t, nil)
	counter := testutil.CountQueries(t, f.db)

	for _, req := range []*http.Request{
		httptest.NewRequest("DELETE", "/posts/not-an-id", nil),
		jsonRequest("PUT", "/posts/not-an-id", fiber.Map{"description": "x"}),
		jsonRequest("PATCH", "/posts/"+uuid.Nil.String(), fiber.Map{"description": "x"}),
	} {
		status, env, _ := f.do(t, req)
		if status != fiber.StatusBadRequest || env.Message != "Invalid post ID" {
			t.Errorf("%s %s: expected 400 Invalid post ID, got %d %+v", req.Method, req.URL, status, env)
		}
	}
	if counter.Count() != 0 {
		t.Errorf("malformed ids reached the database %d times", counter.Count())
	}
	if len(f.events.events) != 0 {
		t.Errorf("unexpected events: %+v", f.events.events)
	}
}

func TestCreatePostRejectsLongTag(t *testing.T) {
	f := newFixture(t, nil)
	user := testutil.CreateUser(t, f.db, "ana")

	status, env, _ := f.do(t, jsonRequest("POST", "/posts", fiber.Map{
		"description": "hello",
		"user":        user.ID.String(),
		"tags":        []string{"go", strings.Repeat("a", 101)},
	}))
	if status != fiber.StatusBadRequest || env.Message != "Tag name is too long" {
		t.Errorf("expected 400 for a long tag, got %d %+v", status, env)
	}

	var posts, tags int64
	f.db.Model(&models.Post{}).Count(&posts)
	f.db.Model(&models.Tag{}).Count(&tags)
	if posts != 0 || tags != 0 {
		t.Errorf("rejected request wrote %d posts and %d tags", posts, tags)
	}
}

func TestCreatePostAuthorComesFromToken(t *testing.T) {
	f := newFixture(t, nil)
	ana := testutil.CreateUser(t, f.db, "ana")
	bob := testutil.CreateUser(t, f.db, "bob")

	h := NewHandler(f.db, f.cache, utils.NewLocalUploader(t.TempDir(), "/images"), f.events)
	f.app = fiber.New()
	f.app.Post("/posts", func(c *fiber.Ctx) error {
		c.Locals("user_id", ana.ID.String())
		return c.Next()
	}, h.CreatePost)

	for _, body := range []fiber.Map{
		{"description": "implicit"},
		{"description": "explicit", "user": ana.ID.String()},
	} {
		status, env, _ := f.do(t, jsonRequest("POST", "/posts", body))
		if status != fiber.StatusCreated {
			t.Fatalf("%v: expected 201, got %d: %s", body, status, env.Message)
		}
		if d := decodeDetail(t, env); d.User == nil || d.User.ID != ana.ID {
			t.Errorf("%v: expected ana as author, got %+v", body, d.User)
		}
	}

	status, env, _ := f.do(t, jsonRequest("POST", "/posts", fiber.Map{"description": "spoofed", "user": bob.ID.String()}))
	if status != fiber.StatusForbidden || env.Status != "error" {
		t.Errorf("expected 403 for another author, got %d %+v", status, env)
	}
	var n int64
	f.db.Model(&models.Post{}).Where("user_id = ?", bob.ID).Count(&n)
	if n != 0 {
		t.Errorf("post created on behalf of bob")
	}
}
