package drive

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"

	drivev3 "google.golang.org/api/drive/v3"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"

	"github.com/dvloznov/budget-backend/internal/apperr"
	"github.com/dvloznov/budget-backend/internal/config"
)

// AppFolderName is the My Drive folder used in folder mode.
const AppFolderName = "BudgetingApp"

const metaFields = "id,name,md5Checksum,modifiedTime,size"

// Service is the Drive v3 implementation of RemoteClient. In folder mode it
// works inside a named folder in My Drive; in appdata mode it works inside
// the application data space.
type Service struct {
	api      *drivev3.Service
	mode     string
	folderID string
}

// Scopes returns the OAuth scopes a sync mode needs.
func Scopes(mode string) []string {
	if mode == config.ModeAppData {
		return []string{drivev3.DriveAppdataScope}
	}
	return []string{drivev3.DriveFileScope}
}

// NewService builds a Drive client from the persisted credential. In folder
// mode it finds or creates the application folder up front.
func NewService(ctx context.Context, tokenPath, mode string) (*Service, error) {
	ts, err := loadTokenSource(ctx, tokenPath, Scopes(mode))
	if err != nil {
		return nil, err
	}

	api, err := drivev3.NewService(ctx, option.WithTokenSource(ts))
	if err != nil {
		return nil, apperr.RemoteUnavailable("could not create Drive client", err)
	}

	s := &Service{api: api, mode: mode}
	if mode == config.ModeFolder {
		folderID, err := s.ensureFolder(ctx)
		if err != nil {
			return nil, err
		}
		s.folderID = folderID
	}
	return s, nil
}

// FolderID returns the application folder id, empty in appdata mode.
func (s *Service) FolderID() string { return s.folderID }

func (s *Service) spaces() string {
	if s.mode == config.ModeAppData {
		return "appDataFolder"
	}
	return "drive"
}

// escapeQuery escapes a value for a Drive q-string literal.
func escapeQuery(v string) string {
	v = strings.ReplaceAll(v, `\`, `\\`)
	return strings.ReplaceAll(v, `'`, `\'`)
}

func (s *Service) ensureFolder(ctx context.Context) (string, error) {
	q := fmt.Sprintf("mimeType='application/vnd.google-apps.folder' and name='%s' and trashed=false",
		escapeQuery(AppFolderName))
	resp, err := s.api.Files.List().Q(q).Spaces("drive").
		Fields("files(id,name)").PageSize(10).Context(ctx).Do()
	if err != nil {
		return "", apperr.RemoteUnavailable("could not look up Drive folder", err)
	}
	if len(resp.Files) > 0 {
		return resp.Files[0].Id, nil
	}

	created, err := s.api.Files.Create(&drivev3.File{
		Name:     AppFolderName,
		MimeType: "application/vnd.google-apps.folder",
	}).Fields("id").Context(ctx).Do()
	if err != nil {
		return "", apperr.RemoteUnavailable("could not create Drive folder", err)
	}
	return created.Id, nil
}

func (s *Service) Find(ctx context.Context, filename string) (*FileMeta, error) {
	var q string
	if s.mode == config.ModeFolder {
		if s.folderID == "" {
			return nil, nil
		}
		q = fmt.Sprintf("name='%s' and '%s' in parents and trashed=false",
			escapeQuery(filename), escapeQuery(s.folderID))
	} else {
		q = fmt.Sprintf("name='%s' and trashed=false", escapeQuery(filename))
	}

	resp, err := s.api.Files.List().Q(q).Spaces(s.spaces()).
		Fields("files(" + metaFields + ")").PageSize(10).Context(ctx).Do()
	if err != nil {
		return nil, apperr.RemoteUnavailable(fmt.Sprintf("could not search Drive for %s", filename), err)
	}
	if len(resp.Files) == 0 {
		return nil, nil
	}
	return toMeta(resp.Files[0]), nil
}

func (s *Service) Metadata(ctx context.Context, fileID string) (*FileMeta, error) {
	f, err := s.api.Files.Get(fileID).Fields(metaFields).Context(ctx).Do()
	if err != nil {
		var apiErr *googleapi.Error
		if errors.As(err, &apiErr) && apiErr.Code == 404 {
			return nil, nil
		}
		return nil, apperr.RemoteUnavailable(fmt.Sprintf("could not fetch Drive metadata for %s", fileID), err)
	}
	return toMeta(f), nil
}

func (s *Service) Download(ctx context.Context, fileID string) ([]byte, error) {
	resp, err := s.api.Files.Get(fileID).Context(ctx).Download()
	if err != nil {
		return nil, apperr.RemoteUnavailable(fmt.Sprintf("could not download Drive file %s", fileID), err)
	}
	defer resp.Body.Close()

	var buf bytes.Buffer
	if _, err := buf.ReadFrom(resp.Body); err != nil {
		return nil, apperr.RemoteUnavailable(fmt.Sprintf("could not read Drive file %s", fileID), err)
	}
	return buf.Bytes(), nil
}

func (s *Service) Upload(ctx context.Context, filename string, data []byte, existingID string) (*FileMeta, error) {
	media := bytes.NewReader(data)
	mime := mediaMime(filename)

	if existingID != "" {
		f, err := s.api.Files.Update(existingID, &drivev3.File{}).
			Media(media, googleapi.ContentType(mime)).
			Fields(metaFields).Context(ctx).Do()
		if err != nil {
			return nil, apperr.RemoteUnavailable(fmt.Sprintf("could not update Drive file %s", filename), err)
		}
		return toMeta(f), nil
	}

	body := &drivev3.File{Name: filename}
	if s.mode == config.ModeFolder {
		if s.folderID == "" {
			return nil, apperr.RemoteUnavailable("Drive folder id missing", nil)
		}
		body.Parents = []string{s.folderID}
	} else {
		body.Parents = []string{"appDataFolder"}
	}

	f, err := s.api.Files.Create(body).
		Media(media, googleapi.ContentType(mime)).
		Fields(metaFields).Context(ctx).Do()
	if err != nil {
		return nil, apperr.RemoteUnavailable(fmt.Sprintf("could not create Drive file %s", filename), err)
	}
	return toMeta(f), nil
}

func toMeta(f *drivev3.File) *FileMeta {
	return &FileMeta{
		ID:           f.Id,
		Name:         f.Name,
		MD5:          f.Md5Checksum,
		ModifiedTime: f.ModifiedTime,
		Size:         f.Size,
	}
}

func mediaMime(filename string) string {
	switch {
	case strings.HasSuffix(filename, ".json"):
		return "application/json"
	case strings.HasSuffix(filename, ".csv"):
		return "text/csv"
	}
	return "application/octet-stream"
}
