package core

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/aimine/bunshin/internal/auth"
	"github.com/aimine/bunshin/internal/store"
)

// UserUpload is one row of a bulk user import.
type UserUpload struct {
	CompanyID   string `json:"companyId"`
	CompanyName string `json:"companyName"`
	Email       string `json:"email"`
	Name        string `json:"name"`
	Role        string `json:"role"`
}

// ProvisionResult reports the outcome for one uploaded row. A failed
// row never aborts the rest of the batch.
type ProvisionResult struct {
	Email  string `json:"email"`
	Status string `json:"status"` // "success" or "failed"
	Reason string `json:"reason,omitempty"`
}

// ProvisionStore is the store surface bulk provisioning writes through.
type ProvisionStore interface {
	GetCompany(ctx context.Context, id string) (*store.Company, error)
	UpsertCompany(ctx context.Context, c store.Company) error
	GetUserByEmail(ctx context.Context, email string) (*store.User, error)
	CreateUser(ctx context.Context, u store.User) error
	PutBot(ctx context.Context, b store.Bot) error
}

// ProvisionService performs bulk user onboarding: per row it ensures
// the company exists, ensures an account exists (initial password,
// forced reset), writes the user record, and for admins creates their
// default avatar bot. This is the only place bots are created outside
// manual admin editing.
type ProvisionService struct {
	store           ProvisionStore
	defaultPassword string
}

func NewProvisionService(st ProvisionStore, defaultPassword string) *ProvisionService {
	return &ProvisionService{store: st, defaultPassword: defaultPassword}
}

func (s *ProvisionService) RegisterUsers(ctx context.Context, uploads []UserUpload) []ProvisionResult {
	results := make([]ProvisionResult, 0, len(uploads))
	for _, up := range uploads {
		if err := s.registerOne(ctx, up); err != nil {
			slog.Warn("user provisioning failed", "email", up.Email, "error", err)
			results = append(results, ProvisionResult{Email: up.Email, Status: "failed", Reason: err.Error()})
			continue
		}
		results = append(results, ProvisionResult{Email: up.Email, Status: "success"})
	}
	return results
}

func (s *ProvisionService) registerOne(ctx context.Context, up UserUpload) error {
	if up.CompanyID == "" || up.CompanyName == "" || up.Email == "" || up.Name == "" || up.Role == "" {
		return fmt.Errorf("missing-fields")
	}
	switch up.Role {
	case store.RoleEmployee, store.RoleAdmin, store.RoleDeveloper:
	default:
		return fmt.Errorf("invalid-role: %q", up.Role)
	}

	// ensure the company exists
	if _, err := s.store.GetCompany(ctx, up.CompanyID); err != nil {
		if !store.IsNotFound(err) {
			return err
		}
		if err := s.store.UpsertCompany(ctx, store.Company{ID: up.CompanyID, Name: up.CompanyName}); err != nil {
			return err
		}
	}

	// ensure the account exists; existing accounts are left untouched
	existing, err := s.store.GetUserByEmail(ctx, up.Email)
	if err != nil && !store.IsNotFound(err) {
		return err
	}
	if existing == nil {
		hash, err := auth.HashPassword(s.defaultPassword)
		if err != nil {
			return err
		}
		user := store.User{
			ID:                uuid.NewString(),
			CompanyID:         up.CompanyID,
			Email:             up.Email,
			Name:              up.Name,
			Role:              up.Role,
			MustResetPassword: true,
			PasswordHash:      hash,
		}
		if up.Role == store.RoleAdmin {
			user.BotID = up.Name
		}
		if err := s.store.CreateUser(ctx, user); err != nil {
			return err
		}
	}

	// admins get a default avatar persona named after them
	if up.Role == store.RoleAdmin {
		prompt := fmt.Sprintf("会社「%s」の管理職「%s」です。", up.CompanyName, up.Name)
		if err := s.store.PutBot(ctx, store.Bot{CompanyID: up.CompanyID, Name: up.Name, Prompt: prompt}); err != nil {
			return err
		}
	}
	return nil
}
