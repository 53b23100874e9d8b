package handlers

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/aqylal/apiserver/internal/services"
	"github.com/aqylal/apiserver/internal/store"
	"github.com/aqylal/apiserver/types"
)

type fakeUserRepo struct {
	findInTableFn func(ctx context.Context, table string, id int) (types.Profile, error)
}

func (f *fakeUserRepo) FindByID(ctx context.Context, id int) (types.Profile, error) {
	return types.Profile{}, store.ErrNotFound
}

func (f *fakeUserRepo) FindByEmail(ctx context.Context, email string) (types.Profile, error) {
	return types.Profile{}, store.ErrNotFound
}

func (f *fakeUserRepo) FindInTable(ctx context.Context, table string, id int) (types.Profile, error) {
	if f.findInTableFn != nil {
		return f.findInTableFn(ctx, table, id)
	}
	return types.Profile{}, store.ErrNotFound
}

func (f *fakeUserRepo) Register(ctx context.Context, input store.RegisterInput) (types.Profile, error) {
	return types.Profile{}, nil
}

func (f *fakeUserRepo) UpdateProfile(ctx context.Context, table string, id int, upd types.ProfileUpdate) error {
	return nil
}

type fakeSessionRepo struct {
	findByTokenFn func(ctx context.Context, token string) (types.Session, error)
	countFn       func(ctx context.Context, userID int) (int, error)
	deletedTokens []string
	deletedUsers  []int
}

func (f *fakeSessionRepo) Create(ctx context.Context, userID int, token string, ttl time.Duration) (types.Session, error) {
	return types.Session{UserID: userID, Token: token}, nil
}

func (f *fakeSessionRepo) FindByToken(ctx context.Context, token string) (types.Session, error) {
	if f.findByTokenFn != nil {
		return f.findByTokenFn(ctx, token)
	}
	return types.Session{}, store.ErrNotFound
}

func (f *fakeSessionRepo) DeleteByToken(ctx context.Context, token string) error {
	f.deletedTokens = append(f.deletedTokens, token)
	return nil
}

func (f *fakeSessionRepo) DeleteByUserID(ctx context.Context, userID int) error {
	f.deletedUsers = append(f.deletedUsers, userID)
	return nil
}

func (f *fakeSessionRepo) CountByUserID(ctx context.Context, userID int) (int, error) {
	if f.countFn != nil {
		return f.countFn(ctx, userID)
	}
	return 0, nil
}

type fakeSubjectRepo struct {
	subjects map[int][]string
}

func (f *fakeSubjectRepo) ListForTeacher(ctx context.Context, teacherID int) ([]string, error) {
	return f.subjects[teacherID], nil
}

func (f *fakeSubjectRepo) ReplaceForTeacher(ctx context.Context, teacherID int, names []string) error {
	if f.subjects == nil {
		f.subjects = map[int][]string{}
	}
	f.subjects[teacherID] = names
	return nil
}

type fakeSettingsRepo struct {
	languages map[int]string
}

func (f *fakeSettingsRepo) Get(ctx context.Context, userID int) (types.UserSettings, error) {
	language, ok := f.languages[userID]
	if !ok {
		return types.UserSettings{}, store.ErrNotFound
	}
	return types.UserSettings{UserID: userID, Language: language}, nil
}

func (f *fakeSettingsRepo) SetLanguage(ctx context.Context, userID int, language string) error {
	if f.languages == nil {
		f.languages = map[int]string{}
	}
	f.languages[userID] = language
	return nil
}

func newTestUserService(users *fakeUserRepo, sessions *fakeSessionRepo, settings *fakeSettingsRepo) *services.UserService {
	return services.NewUserService(users, sessions, &fakeSubjectRepo{}, settings)
}

func withIdentity(r *http.Request, actor services.Actor) *http.Request {
	return r.WithContext(context.WithValue(r.Context(), contextIdentityKey, actor))
}

func TestChangeLanguage(t *testing.T) {
	settings := &fakeSettingsRepo{}
	handler := NewUserHandler(newTestUserService(&fakeUserRepo{}, &fakeSessionRepo{}, settings), nil, testSecret, time.Hour)

	req := httptest.NewRequest(http.MethodPut, "/users/change-language", strings.NewReader(`{"language":"kk"}`))
	req = withIdentity(req, services.Actor{ID: 42, RoleID: types.RoleStudent, Table: types.TableUsers})
	recorder := httptest.NewRecorder()
	handler.ChangeLanguage(recorder, req)

	if recorder.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", recorder.Code)
	}
	if settings.languages[42] != "kk" {
		t.Errorf("language for 42 = %q, want kk", settings.languages[42])
	}
}

func TestChangeLanguageRequiresValue(t *testing.T) {
	settings := &fakeSettingsRepo{}
	handler := NewUserHandler(newTestUserService(&fakeUserRepo{}, &fakeSessionRepo{}, settings), nil, testSecret, time.Hour)

	req := httptest.NewRequest(http.MethodPut, "/users/change-language", strings.NewReader(`{"language":"  "}`))
	req = withIdentity(req, services.Actor{ID: 42, RoleID: types.RoleStudent, Table: types.TableUsers})
	recorder := httptest.NewRecorder()
	handler.ChangeLanguage(recorder, req)

	if recorder.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", recorder.Code)
	}
	if len(settings.languages) != 0 {
		t.Error("no language must be stored for a blank request")
	}
}

func TestGetProfileIncludesLanguage(t *testing.T) {
	users := &fakeUserRepo{findInTableFn: func(ctx context.Context, table string, id int) (types.Profile, error) {
		return types.Profile{ID: id, RoleID: types.RoleStudent, Table: table}, nil
	}}
	settings := &fakeSettingsRepo{languages: map[int]string{42: "ru"}}
	handler := NewUserHandler(newTestUserService(users, &fakeSessionRepo{}, settings), nil, testSecret, time.Hour)

	req := httptest.NewRequest(http.MethodGet, "/users/profile", nil)
	req = withIdentity(req, services.Actor{ID: 42, RoleID: types.RoleStudent, Table: types.TableUsers})
	recorder := httptest.NewRecorder()
	handler.GetProfile(recorder, req)

	if recorder.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", recorder.Code)
	}
	if !strings.Contains(recorder.Body.String(), `"language":"ru"`) {
		t.Errorf("response missing language: %s", recorder.Body.String())
	}
}
