package remote

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	nethttp "net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/bloberror"
	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"

	"github.com/rescale/rescale-intake/internal/events"
)

func TestClientUpload(t *testing.T) {
	var gotName, gotRequestedWith, gotFilename string
	var gotBody []byte

	srv := httptest.NewServer(nethttp.HandlerFunc(func(w nethttp.ResponseWriter, r *nethttp.Request) {
		if r.URL.Path != "/upload" || r.Method != nethttp.MethodPost {
			t.Errorf("request = %s %s", r.Method, r.URL.Path)
		}
		gotName = r.Header.Get("X-Name")
		gotRequestedWith = r.Header.Get("X-Requested-With")

		f, hdr, err := r.FormFile("file")
		if err != nil {
			t.Errorf("FormFile: %v", err)
			w.WriteHeader(nethttp.StatusBadRequest)
			return
		}
		defer f.Close()
		gotFilename = hdr.Filename
		gotBody, _ = io.ReadAll(f)
		w.WriteHeader(nethttp.StatusCreated)
	}))
	defer srv.Close()

	var last, total int64
	c := NewClient(srv.Client(), srv.URL+"/", nil)
	status, err := c.Upload(context.Background(), "abc.png", "cat.png", []byte("meow"), func(sent, tot int64) {
		last, total = sent, tot
	})
	if err != nil {
		t.Fatalf("Upload: %v", err)
	}
	if status != nethttp.StatusCreated {
		t.Errorf("status = %d, want 201", status)
	}
	if gotName != "abc.png" || gotRequestedWith != "XMLHttpRequest" {
		t.Errorf("headers X-Name=%q X-Requested-With=%q", gotName, gotRequestedWith)
	}
	if gotFilename != "cat.png" || string(gotBody) != "meow" {
		t.Errorf("part filename=%q body=%q", gotFilename, gotBody)
	}
	if total == 0 || last != total {
		t.Errorf("progress ended at %d of %d", last, total)
	}
}

func TestClientUploadStatusPassthrough(t *testing.T) {
	srv := httptest.NewServer(nethttp.HandlerFunc(func(w nethttp.ResponseWriter, r *nethttp.Request) {
		w.WriteHeader(nethttp.StatusUnprocessableEntity)
	}))
	defer srv.Close()

	status, err := NewClient(srv.Client(), srv.URL, nil).Upload(context.Background(), "a.txt", "a.txt", []byte("x"), nil)
	if err != nil {
		t.Fatalf("Upload: %v", err)
	}
	if status != nethttp.StatusUnprocessableEntity || Accepted(status) {
		t.Errorf("status = %d accepted=%v", status, Accepted(status))
	}
}

func TestClientUploadTransportError(t *testing.T) {
	srv := httptest.NewServer(nethttp.HandlerFunc(func(w nethttp.ResponseWriter, r *nethttp.Request) {}))
	url := srv.URL
	srv.Close()

	if _, err := NewClient(nil, url, nil).Upload(context.Background(), "a.txt", "a.txt", []byte("x"), nil); err == nil {
		t.Error("expected error for closed server")
	}
}

func TestAccepted(t *testing.T) {
	for status, want := range map[int]bool{200: true, 201: true, 0: false, 204: false, 409: false, 500: false} {
		if got := Accepted(status); got != want {
			t.Errorf("Accepted(%d) = %v, want %v", status, got, want)
		}
	}
}

func TestHTTPDeleterRetries(t *testing.T) {
	var calls atomic.Int32
	var got deleteRequest

	srv := httptest.NewServer(nethttp.HandlerFunc(func(w nethttp.ResponseWriter, r *nethttp.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(nethttp.StatusServiceUnavailable)
			return
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode: %v", err)
		}
		w.WriteHeader(nethttp.StatusNoContent)
	}))
	defer srv.Close()

	d := NewHTTPDeleter(srv.Client(), srv.URL+"/delete", nil)
	if err := d.Delete(context.Background(), []string{"a.png", "b.pdf"}); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if calls.Load() != 2 {
		t.Errorf("server saw %d calls, want 2", calls.Load())
	}
	if len(got.IDs) != 2 || got.IDs[0] != "a.png" {
		t.Errorf("ids = %v", got.IDs)
	}
}

func TestHTTPDeleterClientError(t *testing.T) {
	srv := httptest.NewServer(nethttp.HandlerFunc(func(w nethttp.ResponseWriter, r *nethttp.Request) {
		nethttp.Error(w, "nope", nethttp.StatusForbidden)
	}))
	defer srv.Close()

	if err := NewHTTPDeleter(srv.Client(), srv.URL, nil).Delete(context.Background(), []string{"a.png"}); err == nil {
		t.Error("expected error for 403")
	}
}

type fakeS3 struct {
	input *s3.DeleteObjectsInput
	out   *s3.DeleteObjectsOutput
	err   error
}

func (f *fakeS3) DeleteObjects(ctx context.Context, in *s3.DeleteObjectsInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectsOutput, error) {
	f.input = in
	if f.err != nil {
		return nil, f.err
	}
	if f.out != nil {
		return f.out, nil
	}
	return &s3.DeleteObjectsOutput{}, nil
}

func TestS3Deleter(t *testing.T) {
	fake := &fakeS3{}
	d := NewS3Deleter(fake, "bucket", "/uploads/", nil)

	if err := d.Delete(context.Background(), []string{"a.png", "b.pdf"}); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if aws.ToString(fake.input.Bucket) != "bucket" {
		t.Errorf("bucket = %q", aws.ToString(fake.input.Bucket))
	}
	objs := fake.input.Delete.Objects
	if len(objs) != 2 || aws.ToString(objs[0].Key) != "uploads/a.png" {
		t.Errorf("objects = %+v", objs)
	}

	fake.out = &s3.DeleteObjectsOutput{Errors: []s3types.Error{{Code: aws.String("AccessDenied"), Key: aws.String("uploads/a.png")}}}
	if err := d.Delete(context.Background(), []string{"a.png"}); err == nil {
		t.Error("expected error when S3 reports per-object failures")
	}
}

type fakeBlobs struct {
	mu      sync.Mutex
	deleted []string
	missing map[string]bool
}

func (f *fakeBlobs) DeleteBlob(ctx context.Context, container, name string, o *azblob.DeleteBlobOptions) (azblob.DeleteBlobResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.missing[name] {
		return azblob.DeleteBlobResponse{}, &azcore.ResponseError{ErrorCode: string(bloberror.BlobNotFound), StatusCode: 404}
	}
	if name == "forbidden.png" {
		return azblob.DeleteBlobResponse{}, &azcore.ResponseError{ErrorCode: string(bloberror.AuthorizationFailure), StatusCode: 403}
	}
	f.deleted = append(f.deleted, container+"/"+name)
	return azblob.DeleteBlobResponse{}, nil
}

func TestAzureDeleter(t *testing.T) {
	fake := &fakeBlobs{missing: map[string]bool{"gone.png": true}}
	d := NewAzureDeleter(fake, "attachments", "", nil)

	if err := d.Delete(context.Background(), []string{"a.png", "gone.png"}); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if len(fake.deleted) != 1 || fake.deleted[0] != "attachments/a.png" {
		t.Errorf("deleted = %v", fake.deleted)
	}

	if err := d.Delete(context.Background(), []string{"forbidden.png", "b.png"}); err == nil {
		t.Error("expected error for forbidden blob")
	}
	if fake.deleted[len(fake.deleted)-1] != "attachments/b.png" {
		t.Error("failure on one blob stopped the others")
	}
}

func TestSplitContainerURL(t *testing.T) {
	svc, container, err := splitContainerURL("https://acct.blob.core.windows.net/attachments?sv=1&sig=x")
	if err != nil {
		t.Fatal(err)
	}
	if svc != "https://acct.blob.core.windows.net/?sv=1&sig=x" || container != "attachments" {
		t.Errorf("split = %q %q", svc, container)
	}

	for _, bad := range []string{"", "acct/attachments", "https://acct.blob.core.windows.net/", "https://h/a/b"} {
		if _, _, err := splitContainerURL(bad); err == nil {
			t.Errorf("splitContainerURL(%q) accepted", bad)
		}
	}
}

func TestBusDeleter(t *testing.T) {
	bus := events.NewEventBus(4)
	defer bus.Close()
	ch := bus.Subscribe(events.EventDeleteRequested)

	if err := NewBusDeleter(bus, "w1").Delete(context.Background(), []string{"a.png"}); err != nil {
		t.Fatal(err)
	}
	select {
	case ev := <-ch:
		de := ev.(*events.DeleteEvent)
		if len(de.ContentIDs) != 1 || de.ContentIDs[0] != "a.png" || de.Source != "w1" {
			t.Errorf("event = %+v", de)
		}
	case <-time.After(time.Second):
		t.Fatal("no delete event")
	}
}

func TestAsyncDeleter(t *testing.T) {
	var mu sync.Mutex
	var delivered [][]string
	next := DeleterFunc(func(ctx context.Context, ids []string) error {
		mu.Lock()
		defer mu.Unlock()
		delivered = append(delivered, ids)
		if ids[0] == "bad" {
			return errors.New("boom")
		}
		return nil
	})

	var failures atomic.Int32
	a := NewAsyncDeleter(next, nil, func(ids []string, err error) {
		if err != nil {
			failures.Add(1)
		}
	})

	ids := []string{"a.png"}
	a.Enqueue(ids)
	ids[0] = "mutated"
	a.Enqueue([]string{"bad"})
	a.Enqueue(nil)
	a.Close()
	a.Close()
	a.Enqueue([]string{"late.png"})

	if len(delivered) != 2 || delivered[0][0] != "a.png" {
		t.Errorf("delivered = %v", delivered)
	}
	if failures.Load() != 1 {
		t.Errorf("failures = %d, want 1", failures.Load())
	}
}
