package identitytest

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/yourusername/wiki-gate/internal/identity"
)

// MockGateway は呼び出しごとに応答を指定できる identity.Gateway です。
type MockGateway struct {
	mock.Mock
}

func (m *MockGateway) SignUp(ctx context.Context, email, password string, metadata map[string]any) (*identity.SignUpResult, error) {
	args := m.Called(ctx, email, password, metadata)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*identity.SignUpResult), args.Error(1)
}

func (m *MockGateway) SignInWithPassword(ctx context.Context, email, password string) (*identity.Session, error) {
	args := m.Called(ctx, email, password)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*identity.Session), args.Error(1)
}

func (m *MockGateway) GetUser(ctx context.Context, token string) (*identity.User, error) {
	args := m.Called(ctx, token)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*identity.User), args.Error(1)
}

func (m *MockGateway) RefreshSession(ctx context.Context, refreshToken string) (*identity.Session, error) {
	args := m.Called(ctx, refreshToken)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*identity.Session), args.Error(1)
}

func (m *MockGateway) SignOut(ctx context.Context, token string) error {
	args := m.Called(ctx, token)
	return args.Error(0)
}

func (m *MockGateway) CheckEmailExists(ctx context.Context, email string) (bool, error) {
	args := m.Called(ctx, email)
	return args.Bool(0), args.Error(1)
}

var _ identity.Gateway = (*MockGateway)(nil)
