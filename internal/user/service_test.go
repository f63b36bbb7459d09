package user_test

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/gofrs/uuid"
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/vasiliy-maslov/account-directory/internal/user"
)

type MockUserRepository struct {
	mock.Mock
}

func (m *MockUserRepository) Create(ctx context.Context, u *user.User) (uuid.UUID, error) {
	args := m.Called(ctx, u)
	return args.Get(0).(uuid.UUID), args.Error(1)
}

func (m *MockUserRepository) GetByEmail(ctx context.Context, email string) (*user.User, error) {
	args := m.Called(ctx, email)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*user.User), args.Error(1)
}

func (m *MockUserRepository) Update(ctx context.Context, email string, patch user.Patch) error {
	args := m.Called(ctx, email, patch)
	return args.Error(0)
}

func (m *MockUserRepository) SetImage(ctx context.Context, email, image string) error {
	args := m.Called(ctx, email, image)
	return args.Error(0)
}

func (m *MockUserRepository) DeleteByEmail(ctx context.Context, email string) error {
	args := m.Called(ctx, email)
	return args.Error(0)
}

func (m *MockUserRepository) List(ctx context.Context) ([]user.Listing, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]user.Listing), args.Error(1)
}

type MockImageStore struct {
	mock.Mock
}

func (m *MockImageStore) Save(ctx context.Context, filename, contentType string, body io.Reader) (string, error) {
	args := m.Called(ctx, filename, contentType, body)
	return args.String(0), args.Error(1)
}

func (m *MockImageStore) Remove(ctx context.Context, path string) error {
	args := m.Called(ctx, path)
	return args.Error(0)
}

func strPtr(s string) *string {
	return &s
}

func validNewUser() user.NewUser {
	return user.NewUser{FullName: "Jane Doe", Email: "jane@example.com", Password: "Str0ng!Pw"}
}

func requireValidationError(t *testing.T, err error) *user.ValidationError {
	t.Helper()
	var validationErr *user.ValidationError
	require.ErrorAs(t, err, &validationErr)
	return validationErr
}

func TestUserService_CreateUser_Success(t *testing.T) {
	mockRepo := new(MockUserRepository)
	userService := user.NewService(mockRepo, new(MockImageStore))

	expectedID := uuid.Must(uuid.NewV4())

	mockRepo.On("GetByEmail", mock.Anything, "jane@example.com").Return(nil, user.ErrNotFound).Once()
	mockRepo.On("Create", mock.Anything, mock.MatchedBy(func(u *user.User) bool {
		return u.FullName == "Jane Doe" &&
			u.Email == "jane@example.com" &&
			u.Image == nil &&
			bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte("Str0ng!Pw")) == nil
	})).Return(expectedID, nil).Once()

	createdUser, err := userService.CreateUser(context.Background(), validNewUser())
	require.NoError(t, err)
	require.NotNil(t, createdUser)
	assert.Equal(t, expectedID, createdUser.ID)
	assert.NotEqual(t, "Str0ng!Pw", createdUser.PasswordHash, "Password should be hashed, not raw")

	cost, err := bcrypt.Cost([]byte(createdUser.PasswordHash))
	require.NoError(t, err)
	assert.Equal(t, user.PasswordCost, cost)

	mockRepo.AssertExpectations(t)
}

func TestUserService_LongPasswordIsCutTo72Bytes(t *testing.T) {
	ctx := context.Background()
	repo := user.NewMemoryRepository()
	userService := user.NewService(repo, new(MockImageStore))

	longPassword := "Aa1!" + strings.Repeat("a", 80)
	require.True(t, user.IsStrongPassword(longPassword))
	require.Len(t, longPassword, 84)

	_, err := userService.CreateUser(ctx, user.NewUser{FullName: "Jane Doe", Email: "jane@example.com", Password: longPassword})
	require.NoError(t, err)

	created, err := repo.GetByEmail(ctx, "jane@example.com")
	require.NoError(t, err)
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(created.PasswordHash), []byte(longPassword[:72])))

	editedPassword := "Zz9?" + strings.Repeat("b", 80)
	require.NoError(t, userService.EditUser(ctx, "jane@example.com", user.Changes{Password: &editedPassword}))

	edited, err := repo.GetByEmail(ctx, "jane@example.com")
	require.NoError(t, err)
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(edited.PasswordHash), []byte(editedPassword[:72])))
	assert.Error(t, bcrypt.CompareHashAndPassword([]byte(edited.PasswordHash), []byte(longPassword[:72])))
}

func TestUserService_CreateUser_EmailExistsByLookup(t *testing.T) {
	mockRepo := new(MockUserRepository)
	userService := user.NewService(mockRepo, new(MockImageStore))

	mockRepo.On("GetByEmail", mock.Anything, "jane@example.com").
		Return(&user.User{Email: "jane@example.com"}, nil).
		Once()

	createdUser, err := userService.CreateUser(context.Background(), validNewUser())
	require.ErrorIs(t, err, user.ErrEmailExists)
	require.Nil(t, createdUser)
	mockRepo.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
	mockRepo.AssertExpectations(t)
}

func TestUserService_CreateUser_EmailExistsAtInsert(t *testing.T) {
	mockRepo := new(MockUserRepository)
	userService := user.NewService(mockRepo, new(MockImageStore))

	mockRepo.On("GetByEmail", mock.Anything, "jane@example.com").Return(nil, user.ErrNotFound).Once()
	mockRepo.On("Create", mock.Anything, mock.AnythingOfType("*user.User")).
		Return(uuid.Nil, user.ErrEmailExists).
		Once()

	createdUser, err := userService.CreateUser(context.Background(), validNewUser())
	require.ErrorIs(t, err, user.ErrEmailExists)
	require.Nil(t, createdUser)
	mockRepo.AssertExpectations(t)
}

func TestUserService_CreateUser_ValidationNeverTouchesStorage(t *testing.T) {
	tests := []struct {
		name string
		in   user.NewUser
	}{
		{name: "missing_password", in: user.NewUser{FullName: "Jane", Email: "jane@example.com"}},
		{name: "bad_email", in: user.NewUser{FullName: "Jane", Email: "jane", Password: "Str0ng!Pw"}},
		{name: "digit_in_name", in: user.NewUser{FullName: "Jane 2", Email: "jane@example.com", Password: "Str0ng!Pw"}},
		{name: "punctuation_in_name", in: user.NewUser{FullName: "Jane.", Email: "jane@example.com", Password: "Str0ng!Pw"}},
		{name: "weak_password", in: user.NewUser{FullName: "Jane", Email: "jane@example.com", Password: "password"}},
		{name: "nul_in_email", in: user.NewUser{FullName: "Jane", Email: "ja\x00ne@example.com", Password: "Str0ng!Pw"}},
		{name: "invalid_utf8_email", in: user.NewUser{FullName: "Jane", Email: "jane@ex\xffample.com", Password: "Str0ng!Pw"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mockRepo := new(MockUserRepository)
			userService := user.NewService(mockRepo, new(MockImageStore))

			createdUser, err := userService.CreateUser(context.Background(), tt.in)
			requireValidationError(t, err)
			assert.Nil(t, createdUser)
			mockRepo.AssertNotCalled(t, "GetByEmail", mock.Anything, mock.Anything)
			mockRepo.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
		})
	}
}

func TestUserService_CreateUser_RepositoryFailure(t *testing.T) {
	mockRepo := new(MockUserRepository)
	userService := user.NewService(mockRepo, new(MockImageStore))

	dbErr := errors.New("connection refused")
	mockRepo.On("GetByEmail", mock.Anything, "jane@example.com").Return(nil, dbErr).Once()

	_, err := userService.CreateUser(context.Background(), validNewUser())
	require.ErrorIs(t, err, dbErr)
	var validationErr *user.ValidationError
	assert.False(t, errors.As(err, &validationErr))
	mockRepo.AssertExpectations(t)
}

func TestUserService_EditUser_NameOnly(t *testing.T) {
	mockRepo := new(MockUserRepository)
	userService := user.NewService(mockRepo, new(MockImageStore))

	mockRepo.On("GetByEmail", mock.Anything, "jane@example.com").Return(&user.User{Email: "jane@example.com"}, nil).Once()
	mockRepo.On("Update", mock.Anything, "jane@example.com", mock.MatchedBy(func(p user.Patch) bool {
		return p.FullName != nil && *p.FullName == "Jane A Doe" && p.PasswordHash == nil
	})).Return(nil).Once()

	err := userService.EditUser(context.Background(), "jane@example.com", user.Changes{FullName: strPtr("Jane A Doe")})
	require.NoError(t, err)
	mockRepo.AssertExpectations(t)
}

func TestUserService_EditUser_PasswordOnly(t *testing.T) {
	mockRepo := new(MockUserRepository)
	userService := user.NewService(mockRepo, new(MockImageStore))

	rawPassword := "N3w!Passw0rd"
	mockRepo.On("GetByEmail", mock.Anything, "jane@example.com").Return(&user.User{Email: "jane@example.com"}, nil).Once()
	mockRepo.On("Update", mock.Anything, "jane@example.com", mock.MatchedBy(func(p user.Patch) bool {
		return p.FullName == nil &&
			p.PasswordHash != nil &&
			*p.PasswordHash != rawPassword &&
			bcrypt.CompareHashAndPassword([]byte(*p.PasswordHash), []byte(rawPassword)) == nil
	})).Return(nil).Once()

	err := userService.EditUser(context.Background(), "jane@example.com", user.Changes{Password: &rawPassword})
	require.NoError(t, err)
	mockRepo.AssertExpectations(t)
}

func TestUserService_EditUser_InvalidFieldAbortsWholeEdit(t *testing.T) {
	tests := []struct {
		name    string
		changes user.Changes
	}{
		{name: "bad_name_good_password", changes: user.Changes{FullName: strPtr("J4ne"), Password: strPtr("N3w!Passw0rd")}},
		{name: "good_name_bad_password", changes: user.Changes{FullName: strPtr("Jane"), Password: strPtr("short")}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mockRepo := new(MockUserRepository)
			userService := user.NewService(mockRepo, new(MockImageStore))

			mockRepo.On("GetByEmail", mock.Anything, "jane@example.com").Return(&user.User{Email: "jane@example.com"}, nil).Once()

			err := userService.EditUser(context.Background(), "jane@example.com", tt.changes)
			requireValidationError(t, err)
			mockRepo.AssertNotCalled(t, "Update", mock.Anything, mock.Anything, mock.Anything)
			mockRepo.AssertExpectations(t)
		})
	}
}

func TestUserService_EditUser_NotFound(t *testing.T) {
	mockRepo := new(MockUserRepository)
	userService := user.NewService(mockRepo, new(MockImageStore))

	mockRepo.On("GetByEmail", mock.Anything, "ghost@example.com").Return(nil, user.ErrNotFound).Once()

	err := userService.EditUser(context.Background(), "ghost@example.com", user.Changes{FullName: strPtr("Ghost")})
	require.ErrorIs(t, err, user.ErrNotFound)
	mockRepo.AssertExpectations(t)
}

func TestUserService_EditUser_EmailRequired(t *testing.T) {
	mockRepo := new(MockUserRepository)
	userService := user.NewService(mockRepo, new(MockImageStore))

	err := userService.EditUser(context.Background(), "", user.Changes{FullName: strPtr("Jane")})
	requireValidationError(t, err)
	mockRepo.AssertNotCalled(t, "GetByEmail", mock.Anything, mock.Anything)
}

func TestUserService_EditUser_NothingToChange(t *testing.T) {
	mockRepo := new(MockUserRepository)
	userService := user.NewService(mockRepo, new(MockImageStore))

	mockRepo.On("GetByEmail", mock.Anything, "jane@example.com").Return(&user.User{Email: "jane@example.com"}, nil).Once()

	err := userService.EditUser(context.Background(), "jane@example.com", user.Changes{FullName: strPtr(""), Password: nil})
	require.NoError(t, err)
	mockRepo.AssertNotCalled(t, "Update", mock.Anything, mock.Anything, mock.Anything)
	mockRepo.AssertExpectations(t)
}

func TestUserService_DeleteUser(t *testing.T) {
	tests := []struct {
		name      string
		email     string
		repoErr   error
		callsRepo bool
		check     func(t *testing.T, err error)
	}{
		{
			name:      "success",
			email:     "jane@example.com",
			callsRepo: true,
			check:     func(t *testing.T, err error) { require.NoError(t, err) },
		},
		{
			name:      "not_found",
			email:     "ghost@example.com",
			repoErr:   user.ErrNotFound,
			callsRepo: true,
			check:     func(t *testing.T, err error) { require.ErrorIs(t, err, user.ErrNotFound) },
		},
		{
			name:  "email_required",
			email: "",
			check: func(t *testing.T, err error) { requireValidationError(t, err) },
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mockRepo := new(MockUserRepository)
			userService := user.NewService(mockRepo, new(MockImageStore))
			if tt.callsRepo {
				mockRepo.On("DeleteByEmail", mock.Anything, tt.email).Return(tt.repoErr).Once()
			}

			tt.check(t, userService.DeleteUser(context.Background(), tt.email))

			if !tt.callsRepo {
				mockRepo.AssertNotCalled(t, "DeleteByEmail", mock.Anything, mock.Anything)
			}
			mockRepo.AssertExpectations(t)
		})
	}
}

func TestUserService_ListUsers_IncludesPasswordHash(t *testing.T) {
	mockRepo := new(MockUserRepository)
	userService := user.NewService(mockRepo, new(MockImageStore))

	expected := []user.Listing{
		{FullName: "Jane Doe", Email: "jane@example.com", Password: "$2a$10$hash"},
	}
	mockRepo.On("List", mock.Anything).Return(expected, nil).Once()

	listings, err := userService.ListUsers(context.Background())
	require.NoError(t, err)
	diff := cmp.Diff(expected, listings)
	require.Empty(t, diff)
	mockRepo.AssertExpectations(t)
}

func TestUserService_AttachImage_Success(t *testing.T) {
	mockRepo := new(MockUserRepository)
	mockImages := new(MockImageStore)
	userService := user.NewService(mockRepo, mockImages)

	body := bytes.NewBufferString("png")
	mockRepo.On("GetByEmail", mock.Anything, "jane@example.com").Return(&user.User{Email: "jane@example.com"}, nil).Once()
	mockImages.On("Save", mock.Anything, "me.png", "image/png", body).Return("/images/1-me.png", nil).Once()
	mockRepo.On("SetImage", mock.Anything, "jane@example.com", "/images/1-me.png").Return(nil).Once()

	path, err := userService.AttachImage(context.Background(), "jane@example.com", user.Upload{
		Filename: "me.png", ContentType: "image/png", Body: body,
	})
	require.NoError(t, err)
	assert.Equal(t, "/images/1-me.png", path)
	mockRepo.AssertExpectations(t)
	mockImages.AssertExpectations(t)
}

func TestUserService_AttachImage_RejectsTypeBeforeLookup(t *testing.T) {
	for _, contentType := range []string{"image/webp", "text/plain", "application/octet-stream", ""} {
		t.Run(contentType, func(t *testing.T) {
			mockRepo := new(MockUserRepository)
			mockImages := new(MockImageStore)
			userService := user.NewService(mockRepo, mockImages)

			_, err := userService.AttachImage(context.Background(), "ghost@example.com", user.Upload{
				Filename: "x", ContentType: contentType, Body: bytes.NewBufferString("x"),
			})
			require.ErrorIs(t, err, user.ErrUnsupportedImage)
			mockRepo.AssertNotCalled(t, "GetByEmail", mock.Anything, mock.Anything)
			mockImages.AssertNotCalled(t, "Save", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
		})
	}
}

func TestUserService_AttachImage_ExistingImageIsConflict(t *testing.T) {
	mockRepo := new(MockUserRepository)
	mockImages := new(MockImageStore)
	userService := user.NewService(mockRepo, mockImages)

	mockRepo.On("GetByEmail", mock.Anything, "jane@example.com").
		Return(&user.User{Email: "jane@example.com", Image: strPtr("/images/old.png")}, nil).
		Once()

	_, err := userService.AttachImage(context.Background(), "jane@example.com", user.Upload{
		Filename: "new.png", ContentType: "image/png", Body: bytes.NewBufferString("png"),
	})
	require.ErrorIs(t, err, user.ErrImageExists)
	mockImages.AssertNotCalled(t, "Save", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	mockRepo.AssertNotCalled(t, "SetImage", mock.Anything, mock.Anything, mock.Anything)
	mockRepo.AssertExpectations(t)
}

func TestUserService_AttachImage_LostRaceRemovesFile(t *testing.T) {
	mockRepo := new(MockUserRepository)
	mockImages := new(MockImageStore)
	userService := user.NewService(mockRepo, mockImages)

	mockRepo.On("GetByEmail", mock.Anything, "jane@example.com").Return(&user.User{Email: "jane@example.com"}, nil).Once()
	mockImages.On("Save", mock.Anything, "b.gif", "image/gif", mock.Anything).Return("/images/2-b.gif", nil).Once()
	mockRepo.On("SetImage", mock.Anything, "jane@example.com", "/images/2-b.gif").Return(user.ErrImageExists).Once()
	mockImages.On("Remove", mock.Anything, "/images/2-b.gif").Return(nil).Once()

	_, err := userService.AttachImage(context.Background(), "jane@example.com", user.Upload{
		Filename: "b.gif", ContentType: "image/gif", Body: bytes.NewBufferString("gif"),
	})
	require.ErrorIs(t, err, user.ErrImageExists)
	mockRepo.AssertExpectations(t)
	mockImages.AssertExpectations(t)
}

func TestUserService_AttachImage_FailedWriteLeavesRecord(t *testing.T) {
	mockRepo := new(MockUserRepository)
	mockImages := new(MockImageStore)
	userService := user.NewService(mockRepo, mockImages)

	mockRepo.On("GetByEmail", mock.Anything, "jane@example.com").Return(&user.User{Email: "jane@example.com"}, nil).Once()
	mockImages.On("Save", mock.Anything, "c.jpg", "image/jpeg", mock.Anything).Return("", errors.New("disk full")).Once()

	_, err := userService.AttachImage(context.Background(), "jane@example.com", user.Upload{
		Filename: "c.jpg", ContentType: "image/jpeg", Body: bytes.NewBufferString("jpg"),
	})
	require.Error(t, err)
	mockRepo.AssertNotCalled(t, "SetImage", mock.Anything, mock.Anything, mock.Anything)
	mockImages.AssertExpectations(t)
}

func TestUserService_AttachImage_MissingInput(t *testing.T) {
	mockRepo := new(MockUserRepository)
	userService := user.NewService(mockRepo, new(MockImageStore))

	_, err := userService.AttachImage(context.Background(), "", user.Upload{
		Filename: "a.png", ContentType: "image/png", Body: bytes.NewBufferString("png"),
	})
	requireValidationError(t, err)

	_, err = userService.AttachImage(context.Background(), "jane@example.com", user.Upload{})
	requireValidationError(t, err)

	mockRepo.AssertNotCalled(t, "GetByEmail", mock.Anything, mock.Anything)
}
