package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/gofrs/uuid/v5"
	"github.com/stretchr/testify/require"

	"github.com/and161185/deferlink/internal/errs"
	"github.com/and161185/deferlink/internal/model"
	"github.com/and161185/deferlink/internal/repository"
)

type fakeStateRepo struct {
	st      *model.InstallState
	loadErr error
	saveErr error
	saves   int
}

var _ repository.InstallStateRepository = (*fakeStateRepo)(nil)

func (f *fakeStateRepo) Load(context.Context) (model.InstallState, error) {
	if f.loadErr != nil {
		return model.InstallState{}, f.loadErr
	}
	if f.st == nil {
		return model.InstallState{}, errs.ErrNotFound
	}
	return *f.st, nil
}

func (f *fakeStateRepo) MarkResolved(_ context.Context, st model.InstallState) (model.InstallState, error) {
	f.saves++
	if f.saveErr != nil {
		return model.InstallState{}, f.saveErr
	}
	if st.InstallID == uuid.Nil {
		st.InstallID = uuid.Must(uuid.NewV4())
	}
	st.Resolved = true
	f.st = &st
	return st, nil
}

func (f *fakeStateRepo) Reset(context.Context) error {
	f.st = nil
	return nil
}

type fixedService struct {
	out   model.Outcome
	calls int
}

func (s *fixedService) Resolve(context.Context) model.Outcome {
	s.calls++
	return s.out
}

func TestResolveOnce_PersistsAndGates(t *testing.T) {
	t.Parallel()

	at := time.Date(2026, 5, 1, 9, 30, 0, 0, time.UTC)
	now := func() time.Time { return at }
	res := &model.MatchResult{Matched: true, Method: model.MethodReferrer, DeepLinkURL: "app://a", LinkID: "l1"}
	svc := &fixedService{out: model.Outcome{Kind: model.OutcomeAccepted, Result: res}}
	repo := &fakeStateRepo{}
	ctx := context.Background()

	out, err := ResolveOnce(ctx, svc, repo, now, false)
	require.NoError(t, err)
	require.True(t, out.Attributed())
	require.NotNil(t, repo.st)
	require.Equal(t, model.ReasonAccepted, repo.st.Outcome)
	require.Equal(t, "app://a", repo.st.DeepLinkURL)
	require.Equal(t, "l1", repo.st.LinkID)
	require.True(t, at.Equal(repo.st.ResolvedAt))
	firstID := repo.st.InstallID

	_, err = ResolveOnce(ctx, svc, repo, now, false)
	require.ErrorIs(t, err, errs.ErrAlreadyResolved)
	require.Equal(t, 1, svc.calls)

	_, err = ResolveOnce(ctx, svc, repo, now, true)
	require.NoError(t, err)
	require.Equal(t, 2, svc.calls)
	require.Equal(t, firstID, repo.st.InstallID, "forced rerun keeps the install id")
}

func TestResolveOnce_TransientOutcomesNotPersisted(t *testing.T) {
	t.Parallel()

	for _, out := range []model.Outcome{
		{Kind: model.OutcomeExhausted, Err: errs.ErrExhausted},
		{Kind: model.OutcomeNoMatch, Err: context.Canceled},
		{Kind: model.OutcomeNoMatch, Err: errors.New("resolver panic")},
	} {
		repo := &fakeStateRepo{}
		got, err := ResolveOnce(context.Background(), &fixedService{out: out}, repo, nil, false)
		require.NoError(t, err)
		require.Equal(t, out.Kind, got.Kind)
		require.Equal(t, 0, repo.saves, out.Reason())
	}
}

func TestResolveOnce_DefinitiveNoMatchPersisted(t *testing.T) {
	t.Parallel()

	repo := &fakeStateRepo{}
	_, err := ResolveOnce(context.Background(), &fixedService{out: model.Outcome{Kind: model.OutcomeNoMatch}}, repo, nil, false)
	require.NoError(t, err)
	require.Equal(t, 1, repo.saves)
	require.Equal(t, model.ReasonNoMatch, repo.st.Outcome)
	require.Empty(t, repo.st.DeepLinkURL)
}

func TestResolveOnce_RepositoryErrors(t *testing.T) {
	t.Parallel()

	boom := errors.New("disk gone")
	svc := &fixedService{out: model.Outcome{Kind: model.OutcomeNoMatch}}

	_, err := ResolveOnce(context.Background(), svc, &fakeStateRepo{loadErr: boom}, nil, false)
	require.ErrorIs(t, err, boom)
	require.Equal(t, 0, svc.calls)

	out, err := ResolveOnce(context.Background(), svc, &fakeStateRepo{saveErr: boom}, nil, false)
	require.ErrorIs(t, err, boom)
	require.Equal(t, model.OutcomeNoMatch, out.Kind)
}
