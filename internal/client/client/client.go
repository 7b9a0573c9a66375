package client

import (
	"context"

	"github.com/dmitrijs2005/grabsmart/internal/client/models"
)

// Client is the GrabSmart backend API, one method per endpoint.
type Client interface {
	Login(ctx context.Context, email, password string) (*models.LoginResponse, error)
	SendRegisterCode(ctx context.Context, req models.RegisterRequest) (*models.MessageResponse, error)
	ConfirmRegister(ctx context.Context, email, code string) (*models.MessageResponse, error)
	SendRecoveryCode(ctx context.Context, email string) (*models.MessageResponse, error)
	ConfirmRecovery(ctx context.Context, email, code, newPassword string) (*models.MessageResponse, error)

	Me(ctx context.Context) (*models.UserProfile, error)
	UpdateUser(ctx context.Context, id string, upd models.ProfileUpdate) (*models.UserProfile, error)

	RequestUploadURL(ctx context.Context, req models.UploadURLRequest) (*models.UploadTarget, error)
	CompleteUpload(ctx context.Context, req models.CompleteUploadRequest) (*models.FileRecord, error)
	ListFiles(ctx context.Context) ([]models.FileRecord, error)
	DownloadURL(ctx context.Context, id string) (string, error)
	DeleteFile(ctx context.Context, id string) error
}
