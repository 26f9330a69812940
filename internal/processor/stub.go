package processor

import "context"

// StubClient reports every charge as succeeded. It is wired only in
// development when no processor credentials are configured, so the settlement
// flow can be exercised end to end against seed data.
type StubClient struct{}

// NewStubClient creates the development stub.
func NewStubClient() *StubClient {
	return &StubClient{}
}

// RetrieveCharge returns a synthetic succeeded charge.
func (s *StubClient) RetrieveCharge(_ context.Context, transactionID string) (*Charge, error) {
	return &Charge{
		TransactionID: transactionID,
		Status:        ChargeStatusSucceeded,
	}, nil
}

var _ Port = (*StubClient)(nil)
