package service

import "context"

type testTxRepos struct {
	indexJobs IndexJobRepositoryInterface
	records   RecordRepositoryInterface
}

func (t *testTxRepos) IndexJobs() IndexJobRepositoryInterface {
	return t.indexJobs
}

func (t *testTxRepos) Records() RecordRepositoryInterface {
	return t.records
}

type testTxRunner struct {
	repos  TxRepositories
	called bool
}

func (t *testTxRunner) WithTx(ctx context.Context, fn func(repos TxRepositories) error) error {
	t.called = true
	return fn(t.repos)
}
