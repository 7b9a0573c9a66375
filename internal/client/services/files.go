package services

import (
	"context"
	"io"
	"strings"

	"github.com/dmitrijs2005/grabsmart/internal/client/models"
	"github.com/dmitrijs2005/grabsmart/internal/client/notify"
	"github.com/dmitrijs2005/grabsmart/internal/netx"
)

// Usage is the storage used by the current user against the quota.
type Usage struct {
	Files int
	Used  int64
	Limit int64
}

// Percent of the quota in use, 0 when there is no quota.
func (u Usage) Percent() float64 {
	if u.Limit <= 0 {
		return 0
	}
	return float64(u.Used) * 100 / float64(u.Limit)
}

// FileService defines profile and file catalog operations.
//
// A 401 from the backend ends the session before the error is returned.
type FileService interface {
	Profile(ctx context.Context) (*models.UserProfile, error)
	UpdateUsername(ctx context.Context, username string) (*models.UserProfile, error)
	List(ctx context.Context) ([]models.FileRecord, error)
	DownloadURL(ctx context.Context, id string) (string, error)
	Download(ctx context.Context, id string, w io.Writer) (int64, error)
	Delete(ctx context.Context, id string) error
	Usage(ctx context.Context) (*Usage, error)
}

type fileService struct {
	Deps
}

func NewFileService(deps Deps) FileService {
	return &fileService{Deps: deps.withDefaults()}
}

func (f *fileService) Profile(ctx context.Context) (*models.UserProfile, error) {
	p, err := f.Client.Me(ctx)
	if err != nil {
		return nil, f.expire(ctx, err)
	}
	return p, nil
}

type usernameForm struct {
	Username string `json:"username" rule:"required,username"`
}

func (f *fileService) UpdateUsername(ctx context.Context, username string) (*models.UserProfile, error) {
	user := f.Store.CurrentUser()
	if user == nil {
		return nil, f.refuse(ctx, ErrNotLoggedIn)
	}

	form := usernameForm{Username: strings.TrimSpace(username)}
	if err := f.check(ctx, form); err != nil {
		return nil, err
	}

	p, err := f.Client.UpdateUser(ctx, user.ID(), models.ProfileUpdate{Username: &form.Username})
	if err != nil {
		return nil, f.expire(ctx, err)
	}
	notify.Success(ctx, f.Notifier, "Username updated to "+p.Username)
	return p, nil
}

func (f *fileService) List(ctx context.Context) ([]models.FileRecord, error) {
	files, err := f.Client.ListFiles(ctx)
	if err != nil {
		return nil, f.expire(ctx, err)
	}
	return files, nil
}

func (f *fileService) DownloadURL(ctx context.Context, id string) (string, error) {
	u, err := f.Client.DownloadURL(ctx, id)
	if err != nil {
		return "", f.expire(ctx, err)
	}
	return u, nil
}

// Download fetches a temporary link for the file and streams it into w.
func (f *fileService) Download(ctx context.Context, id string, w io.Writer) (int64, error) {
	link, err := f.DownloadURL(ctx, id)
	if err != nil {
		return 0, err
	}

	n, err := netx.Download(ctx, f.Transfer, link, w)
	if err != nil {
		f.Logger.Warn(ctx, "download failed", "file_id", id, "error", err)
		notify.Error(ctx, f.Notifier, "Download failed: "+err.Error())
		return n, err
	}
	return n, nil
}

func (f *fileService) Delete(ctx context.Context, id string) error {
	if err := f.Client.DeleteFile(ctx, id); err != nil {
		return f.expire(ctx, err)
	}
	notify.Success(ctx, f.Notifier, "File deleted")
	return nil
}

// Usage reads the quota from the profile.
func (f *fileService) Usage(ctx context.Context) (*Usage, error) {
	p, err := f.Profile(ctx)
	if err != nil {
		return nil, err
	}
	u := UsageOf(p)
	return &u, nil
}

// UsageOf reads the bucket figures of a profile.
func UsageOf(p *models.UserProfile) Usage {
	return Usage{
		Files: p.Bucket.ObjectsAmount,
		Used:  int64(p.Bucket.BucketSize),
		Limit: p.StorageLimitBytes(),
	}
}
