package usecase

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/constructiq/plan-analysis/internal/core/domain"
)

func TestUploadRejectsNonPDF(t *testing.T) {
	uc := NewIngestPlanUseCase(&repoFake{}, &storageFake{}, &queueFake{})

	_, err := uc.Upload(context.Background(), "photo.png", "image/png", strings.NewReader("data"))
	if !errors.Is(err, domain.ErrInvalidInput) {
		t.Fatalf("error = %v, want ErrInvalidInput", err)
	}
}

func TestUploadStoresCreatesAndPublishes(t *testing.T) {
	repo := &repoFake{}
	storage := &storageFake{}
	queue := &queueFake{}
	uc := NewIngestPlanUseCase(repo, storage, queue)

	doc, err := uc.Upload(context.Background(), "Site Plan.pdf", "application/pdf", strings.NewReader("%PDF-1.7"))
	if err != nil {
		t.Fatalf("Upload() error = %v", err)
	}
	if doc.Status != domain.StatusUploaded {
		t.Fatalf("status = %q, want %q", doc.Status, domain.StatusUploaded)
	}
	if repo.created == nil || repo.created.ID != doc.ID {
		t.Fatalf("document row not created: %+v", repo.created)
	}
	if len(storage.saved) != 1 {
		t.Fatalf("saved objects = %d, want 1", len(storage.saved))
	}
	if got, ok := storage.saved[doc.StoragePath]; !ok || string(got) != "%PDF-1.7" {
		t.Fatalf("stored bytes under wrong key or content: %q", storage.saved)
	}
	if len(queue.published) != 1 || queue.published[0] != doc.ID {
		t.Fatalf("published = %v, want [%s]", queue.published, doc.ID)
	}
}

func TestUploadStorageKeyIsSanitized(t *testing.T) {
	storage := &storageFake{}
	uc := NewIngestPlanUseCase(&repoFake{}, storage, &queueFake{})

	doc, err := uc.Upload(context.Background(), "../weird name (rev2).pdf", "application/pdf", strings.NewReader("x"))
	if err != nil {
		t.Fatalf("Upload() error = %v", err)
	}
	if strings.Contains(doc.StoragePath, "..") || strings.Contains(doc.StoragePath, " ") {
		t.Fatalf("storage key not sanitized: %q", doc.StoragePath)
	}
	if !strings.HasSuffix(doc.StoragePath, ".pdf") {
		t.Fatalf("storage key lost extension: %q", doc.StoragePath)
	}
}

func TestSanitizeFilename(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"plan.pdf", "plan.pdf"},
		{"Site Plan Rev B.pdf", "Site_Plan_Rev_B.pdf"},
		{"", "plan.pdf"},
		{"///", "plan.pdf"},
	}
	for _, tc := range cases {
		if got := sanitizeFilename(tc.in); got != tc.want {
			t.Errorf("sanitizeFilename(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestUploadPublishFailureSurfaces(t *testing.T) {
	queue := &queueFake{err: errors.New("nats down")}
	uc := NewIngestPlanUseCase(&repoFake{}, &storageFake{}, queue)

	_, err := uc.Upload(context.Background(), "plan.pdf", "application/pdf", strings.NewReader("x"))
	if err == nil || !strings.Contains(err.Error(), "publish") {
		t.Fatalf("error = %v, want publish failure", err)
	}
}
