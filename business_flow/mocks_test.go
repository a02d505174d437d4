package businessflow

import (
	"context"
	"sync"
	"time"

	"wablast/models"
)

// fakeAccountRepo is an in-memory AccountRepository for flow tests
type fakeAccountRepo struct {
	mu       sync.Mutex
	accounts map[uint]*models.Account
	nextID   uint
}

func newFakeAccountRepo(accounts ...*models.Account) *fakeAccountRepo {
	repo := &fakeAccountRepo{accounts: make(map[uint]*models.Account)}
	for _, a := range accounts {
		repo.accounts[a.ID] = a
		if a.ID > repo.nextID {
			repo.nextID = a.ID
		}
	}
	return repo
}

func (r *fakeAccountRepo) ByID(ctx context.Context, id uint) (*models.Account, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.accounts[id], nil
}

func (r *fakeAccountRepo) ByFilter(ctx context.Context, filter models.AccountFilter, orderBy string, limit, offset int) ([]*models.Account, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*models.Account, 0, len(r.accounts))
	for _, a := range r.accounts {
		out = append(out, a)
	}
	return out, nil
}

func (r *fakeAccountRepo) Save(ctx context.Context, account *models.Account) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if account.ID == 0 {
		r.nextID++
		account.ID = r.nextID
	}
	r.accounts[account.ID] = account
	return nil
}

func (r *fakeAccountRepo) SaveBatch(ctx context.Context, accounts []*models.Account) error {
	for _, a := range accounts {
		if err := r.Save(ctx, a); err != nil {
			return err
		}
	}
	return nil
}

func (r *fakeAccountRepo) ByUUID(ctx context.Context, uuid string) (*models.Account, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, a := range r.accounts {
		if a.UUID.String() == uuid {
			return a, nil
		}
	}
	return nil, nil
}

func (r *fakeAccountRepo) ByEmail(ctx context.Context, email string) (*models.Account, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, a := range r.accounts {
		if a.Email == email {
			return a, nil
		}
	}
	return nil, nil
}

func (r *fakeAccountRepo) ByIDForUpdate(ctx context.Context, id uint) (*models.Account, error) {
	return r.ByID(ctx, id)
}

func (r *fakeAccountRepo) Update(ctx context.Context, account *models.Account) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.accounts[account.ID] = account
	return nil
}

func (r *fakeAccountRepo) IncrementUsage(ctx context.Context, accountID uint) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if a, ok := r.accounts[accountID]; ok {
		a.MessagesUsedToday++
		a.MessagesUsedMonth++
	}
	return nil
}

func (r *fakeAccountRepo) UpdateCounters(ctx context.Context, accountID uint, credits, creditsUsed int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if a, ok := r.accounts[accountID]; ok {
		a.Credits = credits
		a.CreditsUsed = creditsUsed
	}
	return nil
}

func (r *fakeAccountRepo) ResetDailyUsage(ctx context.Context) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	for _, a := range r.accounts {
		if a.MessagesUsedToday != 0 {
			a.MessagesUsedToday = 0
			n++
		}
	}
	return n, nil
}

func (r *fakeAccountRepo) ResetMonthlyUsage(ctx context.Context) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	for _, a := range r.accounts {
		if a.MessagesUsedMonth != 0 {
			a.MessagesUsedMonth = 0
			n++
		}
	}
	return n, nil
}

// fakeMessageRepo is an in-memory MessageRepository for flow tests
type fakeMessageRepo struct {
	mu       sync.Mutex
	messages []*models.Message
	nextID   uint
}

func newFakeMessageRepo() *fakeMessageRepo {
	return &fakeMessageRepo{}
}

func (r *fakeMessageRepo) ByID(ctx context.Context, id uint) (*models.Message, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, m := range r.messages {
		if m.ID == id {
			return m, nil
		}
	}
	return nil, nil
}

func (r *fakeMessageRepo) ByFilter(ctx context.Context, filter models.MessageFilter, orderBy string, limit, offset int) ([]*models.Message, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]*models.Message(nil), r.messages...), nil
}

func (r *fakeMessageRepo) Save(ctx context.Context, msg *models.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if msg.ID == 0 {
		r.nextID++
		msg.ID = r.nextID
	}
	r.messages = append(r.messages, msg)
	return nil
}

func (r *fakeMessageRepo) SaveBatch(ctx context.Context, msgs []*models.Message) error {
	for _, m := range msgs {
		if err := r.Save(ctx, m); err != nil {
			return err
		}
	}
	return nil
}

func (r *fakeMessageRepo) ByTransportMessageID(ctx context.Context, transportMessageID string) (*models.Message, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, m := range r.messages {
		if m.TransportMessageID != nil && *m.TransportMessageID == transportMessageID {
			return m, nil
		}
	}
	return nil, nil
}

func (r *fakeMessageRepo) Update(ctx context.Context, msg *models.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i, m := range r.messages {
		if m.ID == msg.ID {
			r.messages[i] = msg
			return nil
		}
	}
	return nil
}

func (r *fakeMessageRepo) CountByCampaign(ctx context.Context, campaignID uint, status models.MessageStatus) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	for _, m := range r.messages {
		if m.CampaignID != nil && *m.CampaignID == campaignID && m.Status == status {
			n++
		}
	}
	return n, nil
}

func (r *fakeMessageRepo) byStatus(status models.MessageStatus) []*models.Message {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*models.Message
	for _, m := range r.messages {
		if m.Status == status {
			out = append(out, m)
		}
	}
	return out
}

// fakeCampaignRepo is an in-memory CampaignRepository for flow tests
type fakeCampaignRepo struct {
	mu        sync.Mutex
	campaigns map[uint]*models.Campaign
	contacts  []*models.CampaignContact
	nextID    uint
}

func newFakeCampaignRepo(campaigns ...*models.Campaign) *fakeCampaignRepo {
	repo := &fakeCampaignRepo{campaigns: make(map[uint]*models.Campaign)}
	for _, c := range campaigns {
		repo.campaigns[c.ID] = c
		if c.ID > repo.nextID {
			repo.nextID = c.ID
		}
	}
	return repo
}

func (r *fakeCampaignRepo) ByID(ctx context.Context, id uint) (*models.Campaign, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.campaigns[id], nil
}

func (r *fakeCampaignRepo) ByFilter(ctx context.Context, filter models.CampaignFilter, orderBy string, limit, offset int) ([]*models.Campaign, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*models.Campaign, 0, len(r.campaigns))
	for _, c := range r.campaigns {
		out = append(out, c)
	}
	return out, nil
}

func (r *fakeCampaignRepo) Save(ctx context.Context, campaign *models.Campaign) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if campaign.ID == 0 {
		r.nextID++
		campaign.ID = r.nextID
	}
	r.campaigns[campaign.ID] = campaign
	return nil
}

func (r *fakeCampaignRepo) SaveBatch(ctx context.Context, campaigns []*models.Campaign) error {
	for _, c := range campaigns {
		if err := r.Save(ctx, c); err != nil {
			return err
		}
	}
	return nil
}

func (r *fakeCampaignRepo) ByUUID(ctx context.Context, uuid string) (*models.Campaign, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, c := range r.campaigns {
		if c.UUID.String() == uuid {
			return c, nil
		}
	}
	return nil, nil
}

func (r *fakeCampaignRepo) Update(ctx context.Context, campaign *models.Campaign) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.campaigns[campaign.ID] = campaign
	return nil
}

func (r *fakeCampaignRepo) UpdateStatus(ctx context.Context, campaignID uint, from []models.CampaignStatus, to models.CampaignStatus) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	campaign, ok := r.campaigns[campaignID]
	if !ok {
		return false, nil
	}
	for _, s := range from {
		if campaign.Status == s {
			campaign.Status = to
			return true, nil
		}
	}
	return false, nil
}

func (r *fakeCampaignRepo) IncrementCounters(ctx context.Context, campaignID uint, sentDelta, failedDelta int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if c, ok := r.campaigns[campaignID]; ok {
		c.SentCount += sentDelta
		c.FailedCount += failedDelta
	}
	return nil
}

func (r *fakeCampaignRepo) ListDue(ctx context.Context, now time.Time, limit int) ([]*models.Campaign, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*models.Campaign
	for _, c := range r.campaigns {
		if c.Status == models.CampaignStatusScheduled && c.ScheduledAt != nil && !c.ScheduledAt.After(now) {
			out = append(out, c)
		}
	}
	return out, nil
}

func (r *fakeCampaignRepo) Delete(ctx context.Context, campaignID uint) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.campaigns, campaignID)
	return nil
}

func (r *fakeCampaignRepo) SaveContacts(ctx context.Context, contacts []*models.CampaignContact) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.contacts = append(r.contacts, contacts...)
	return nil
}

func (r *fakeCampaignRepo) CountContacts(ctx context.Context, campaignID uint) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	for _, c := range r.contacts {
		if c.CampaignID == campaignID {
			n++
		}
	}
	return n, nil
}

func (r *fakeCampaignRepo) ListUnattemptedContacts(ctx context.Context, campaignID uint, limit int) ([]*models.CampaignContact, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*models.CampaignContact
	for _, c := range r.contacts {
		if c.CampaignID == campaignID && c.AttemptedAt == nil {
			out = append(out, c)
			if limit > 0 && len(out) == limit {
				break
			}
		}
	}
	return out, nil
}

func (r *fakeCampaignRepo) MarkContactAttempted(ctx context.Context, contactID uint, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, c := range r.contacts {
		if c.ID == contactID {
			c.AttemptedAt = &at
		}
	}
	return nil
}

// fakeCreditFlow deducts against the in-memory account repo without a ledger
type fakeCreditFlow struct {
	mu         sync.Mutex
	repo       *fakeAccountRepo
	Deductions []uint
}

func newFakeCreditFlow(repo *fakeAccountRepo) *fakeCreditFlow {
	return &fakeCreditFlow{repo: repo}
}

func (f *fakeCreditFlow) ApplyDelta(ctx context.Context, accountID uint, amount int64, txType models.CreditTransactionType, description string, actorID *uint) (*models.CreditTransaction, error) {
	f.repo.mu.Lock()
	defer f.repo.mu.Unlock()
	account, ok := f.repo.accounts[accountID]
	if !ok {
		return nil, ErrAccountNotFound
	}
	if account.AvailableCredits()+amount < 0 {
		return nil, ErrInsufficientCredits
	}
	if txType == models.CreditTransactionTypeUsage {
		account.CreditsUsed -= amount
	} else {
		account.Credits += amount
	}
	return &models.CreditTransaction{AccountID: accountID, Type: txType, Amount: amount}, nil
}

func (f *fakeCreditFlow) DeductForSend(ctx context.Context, accountID uint) (*models.CreditTransaction, error) {
	f.mu.Lock()
	f.Deductions = append(f.Deductions, accountID)
	f.mu.Unlock()
	return f.ApplyDelta(ctx, accountID, -1, models.CreditTransactionTypeUsage, "Message sent", nil)
}

func (f *fakeCreditFlow) Transfer(ctx context.Context, fromID, toID uint, amount int64, actorID *uint) error {
	if _, err := f.ApplyDelta(ctx, fromID, -amount, models.CreditTransactionTypeTransfer, "", nil); err != nil {
		return err
	}
	_, err := f.ApplyDelta(ctx, toID, amount, models.CreditTransactionTypeTransfer, "", nil)
	return err
}

func (f *fakeCreditFlow) Balance(ctx context.Context, accountID uint) (*BalanceSnapshot, error) {
	account, err := f.repo.ByID(ctx, accountID)
	if err != nil || account == nil {
		return nil, ErrAccountNotFound
	}
	return &BalanceSnapshot{
		AccountID: accountID,
		Credits:   account.Credits,
		Used:      account.CreditsUsed,
		Available: account.AvailableCredits(),
	}, nil
}

func (f *fakeCreditFlow) Reconcile(ctx context.Context, accountID uint, repair bool) (*ReconcileReport, error) {
	return &ReconcileReport{AccountID: accountID}, nil
}

// fakeWebhookTrigger records every Trigger call
type fakeWebhookTrigger struct {
	mu     sync.Mutex
	Events []fakeWebhookEvent
}

type fakeWebhookEvent struct {
	AccountID uint
	Event     string
	Data      map[string]any
}

func (f *fakeWebhookTrigger) Trigger(ctx context.Context, accountID uint, event string, data map[string]any) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Events = append(f.Events, fakeWebhookEvent{AccountID: accountID, Event: event, Data: data})
}

func (f *fakeWebhookTrigger) byEvent(event string) []fakeWebhookEvent {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []fakeWebhookEvent
	for _, e := range f.Events {
		if e.Event == event {
			out = append(out, e)
		}
	}
	return out
}
