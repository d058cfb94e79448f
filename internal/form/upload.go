package form

import (
	"context"
	"encoding/base64"
	"net/http"
	"path"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"visakal-form/internal/domain"
	"visakal-form/internal/i18n"
)

// Storage is the remote file store behind document and photo fields.
type Storage interface {
	UploadFile(ctx context.Context, file domain.FileUpload) (*domain.UploadedFile, error)
	DeleteFile(ctx context.Context, url string) error
}

// SelectedFile is what the user picked. A nil *SelectedFile is a cancelled picker.
type SelectedFile struct {
	Filename    string
	ContentType string
	Content     []byte
}

// UploadCoordinator moves files between document/photo fields and Storage. Local checks
// run before any network call; transfers on different fields run independently and only
// meet in the orchestrator's in-flight set.
type UploadCoordinator struct {
	o       *Orchestrator
	storage Storage
	logger  *zap.Logger
}

func NewUploadCoordinator(o *Orchestrator, storage Storage, logger *zap.Logger) *UploadCoordinator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &UploadCoordinator{o: o, storage: storage, logger: logger}
}

// Select checks the file against the field constraints and uploads it. Constraint and
// transfer failures end up as the field's local error, not as a returned error.
func (u *UploadCoordinator) Select(ctx context.Context, index int, name string, file *SelectedFile) error {
	if file == nil {
		return nil
	}

	o := u.o
	o.mu.Lock()
	if o.state == StateNavigated {
		o.mu.Unlock()
		return ErrSessionClosed
	}
	f, err := o.lookupLocked(index, name)
	if err != nil {
		o.mu.Unlock()
		return err
	}
	if !f.IsFile() {
		o.mu.Unlock()
		return ErrNotFileField
	}
	fs := o.fileLocked(index, name)
	if msg, ok := checkFile(f, file); !ok {
		fs.err = msg
		o.mu.Unlock()
		return nil
	}

	fs.gen++
	gen := fs.gen
	slot := o.slots[index]
	key := fileKey{slot: slot, field: name}
	// a superseded transfer keeps its own in-flight mark until it returns
	fs.uploading = true
	fs.err = domain.TranslatedText{}
	fs.filename = ""
	if _, isPhoto := f.(*domain.PhotoField); isPhoto {
		fs.preview = dataURL(file)
	}
	uploadID := UploadID(name, index)
	o.beginTransferLocked(key)
	o.mu.Unlock()

	res, upErr := u.storage.UploadFile(ctx, domain.FileUpload{
		FieldName:     name,
		BeneficiaryID: strconv.Itoa(index),
		Filename:      file.Filename,
		ContentType:   file.ContentType,
		Content:       file.Content,
	})

	o.mu.Lock()
	defer o.mu.Unlock()
	o.endTransferLocked(key)

	cur := o.indexOfSlot(slot)
	if cur < 0 || fs.gen != gen {
		u.logger.Info("Discarding superseded upload result",
			zap.String("field", name),
			zap.String("upload_id", uploadID),
			zap.Error(upErr),
		)
		return nil
	}
	fs.uploading = false
	if upErr != nil {
		u.logger.Warn("Failed to upload file", zap.String("field", name), zap.Int("beneficiary", cur), zap.Error(upErr))
		fs.err = i18n.Text(i18n.UploadFailed)
		fs.preview, fs.filename = "", ""
		o.setLocked(cur, name, domain.NullValue())
		return nil
	}
	fs.err = domain.TranslatedText{}
	fs.preview = ""
	fs.filename = res.Filename
	if fs.filename == "" {
		fs.filename = DisplayFilename(res.URL)
	}
	o.setLocked(cur, name, domain.FileValue(res.URL))
	return nil
}

// Remove deletes the stored file and clears the field. On delete failure the value is kept.
func (u *UploadCoordinator) Remove(ctx context.Context, index int, name string) error {
	o := u.o
	o.mu.Lock()
	if o.state == StateNavigated {
		o.mu.Unlock()
		return ErrSessionClosed
	}
	f, err := o.lookupLocked(index, name)
	if err != nil {
		o.mu.Unlock()
		return err
	}
	if !f.IsFile() {
		o.mu.Unlock()
		return ErrNotFileField
	}
	v, _ := o.records[index].Get(name)
	url, _ := v.Str()
	if url == "" {
		o.mu.Unlock()
		return nil
	}
	fs := o.fileLocked(index, name)
	fs.gen++
	fs.uploading = false
	gen := fs.gen
	slot := o.slots[index]
	o.mu.Unlock()

	delErr := u.storage.DeleteFile(ctx, url)

	o.mu.Lock()
	defer o.mu.Unlock()
	cur := o.indexOfSlot(slot)
	if cur < 0 {
		return nil
	}
	if delErr != nil {
		u.logger.Warn("Failed to delete file", zap.String("field", name), zap.Int("beneficiary", cur), zap.Error(delErr))
		fs.err = i18n.Text(i18n.DeleteFailed)
		return nil
	}
	if fs.gen != gen {
		return nil
	}
	if cv, ok := o.records[cur].Get(name); ok {
		if s, _ := cv.Str(); s != url {
			return nil
		}
	}
	fs.err = domain.TranslatedText{}
	fs.preview, fs.filename = "", ""
	o.setLocked(cur, name, domain.NullValue())
	return nil
}

// checkFile applies accepted_formats and max_size_mb.
func checkFile(f domain.Field, file *SelectedFile) (domain.TranslatedText, bool) {
	var (
		formats []string
		limits  domain.FileConstraints
		badFmt  = i18n.InvalidFileFormat
	)
	switch ff := f.(type) {
	case *domain.DocumentField:
		formats, limits = ff.Formats(), ff.FileConstraints
	case *domain.PhotoField:
		formats, limits = ff.Formats(), ff.FileConstraints
		badFmt = i18n.InvalidImageFormat
	}

	ext := strings.ToLower(strings.TrimPrefix(path.Ext(file.Filename), "."))
	accepted := false
	for _, a := range formats {
		if ext != "" && a == ext {
			accepted = true
			break
		}
	}
	if !accepted {
		return i18n.Text(badFmt), false
	}
	if limit := limits.MaxBytes(); limit > 0 && int64(len(file.Content)) > limit {
		return i18n.SizeExceeded(*limits.MaxSizeMB), false
	}
	return domain.TranslatedText{}, true
}

func dataURL(file *SelectedFile) string {
	ct := file.ContentType
	if ct == "" || ct == "application/octet-stream" {
		ct = http.DetectContentType(file.Content)
	}
	return "data:" + ct + ";base64," + base64.StdEncoding.EncodeToString(file.Content)
}
