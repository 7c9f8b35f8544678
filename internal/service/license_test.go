package service

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"logpattern-license-server/internal/database"
	"logpattern-license-server/internal/model"
	"logpattern-license-server/internal/payment"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeNotifier 记录发送请求，可配置失败
type fakeNotifier struct {
	mu    sync.Mutex
	sent  []string
	fail  bool
	keys  []string
	plans []string
}

func (f *fakeNotifier) SendLicenseKey(ctx context.Context, to, licenseKey, plan string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, to)
	f.keys = append(f.keys, licenseKey)
	f.plans = append(f.plans, plan)
	if f.fail {
		return assert.AnError
	}
	return nil
}

func paidEvent(eventID string) payment.CompletedEvent {
	return payment.CompletedEvent{
		EventID:       eventID,
		EventType:     payment.EventCheckoutCompleted,
		PaymentStatus: "paid",
		CustomerEmail: "a@b.com",
		Plan:          "Pro",
		Raw:           `{"id":"` + eventID + `"}`,
	}
}

func TestIssueFromPayment(t *testing.T) {
	db := database.OpenTest()
	defer database.CleanTest(db)

	notifier := &fakeNotifier{}
	svc := NewLicenseService(db, notifier, nil, true, nil)

	result, err := svc.IssueFromPayment(context.Background(), paidEvent("evt_1"))
	require.NoError(t, err)
	assert.False(t, result.AlreadyProcessed)
	assert.True(t, strings.HasPrefix(result.LicenseKey, "LP-"))
	assert.Len(t, result.LicenseKey, len(KeyPrefix)+64)

	// 许可证按初始状态落库
	var license model.License
	require.NoError(t, db.Where("key = ?", result.LicenseKey).First(&license).Error)
	assert.Equal(t, "Pro", license.Plan)
	assert.False(t, license.Activated)
	assert.Empty(t, license.MachineID)
	assert.Equal(t, "evt_1", license.OriginEventID)

	// 事件记录指向同一个密钥
	var event model.PaymentEvent
	require.NoError(t, db.Where("event_id = ?", "evt_1").First(&event).Error)
	assert.True(t, event.Processed)
	assert.Equal(t, result.LicenseKey, event.LicenseKey)
	require.NotNil(t, event.EmailSent)
	assert.True(t, *event.EmailSent)

	// 通知发给了事件里的客户邮箱
	assert.Equal(t, []string{"a@b.com"}, notifier.sent)
}

func TestIssueFromPaymentIdempotent(t *testing.T) {
	db := database.OpenTest()
	defer database.CleanTest(db)

	svc := NewLicenseService(db, nil, nil, true, nil)

	first, err := svc.IssueFromPayment(context.Background(), paidEvent("evt_dup"))
	require.NoError(t, err)

	// 重复投递返回首次的密钥，不生成第二个许可证
	for i := 0; i < 3; i++ {
		again, err := svc.IssueFromPayment(context.Background(), paidEvent("evt_dup"))
		require.NoError(t, err)
		assert.True(t, again.AlreadyProcessed)
		assert.Equal(t, first.LicenseKey, again.LicenseKey)
	}

	var count int64
	db.Model(&model.License{}).Count(&count)
	assert.Equal(t, int64(1), count)
}

func TestIssueFromPaymentConcurrent(t *testing.T) {
	db := database.OpenTest()
	defer database.CleanTest(db)

	svc := NewLicenseService(db, nil, nil, true, nil)

	const n = 4
	results := make(chan *IssueResult, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			r, err := svc.IssueFromPayment(context.Background(), paidEvent("evt_race"))
			assert.NoError(t, err)
			results <- r
		}()
	}
	wg.Wait()
	close(results)

	keys := map[string]bool{}
	for r := range results {
		keys[r.LicenseKey] = true
	}
	assert.Len(t, keys, 1, "所有并发投递必须引用同一个密钥")

	var count int64
	db.Model(&model.License{}).Count(&count)
	assert.Equal(t, int64(1), count)
}

func TestIssueFromPaymentNotPaid(t *testing.T) {
	tests := []struct {
		name        string
		requirePaid bool
		wantErr     error
		wantCount   int64
	}{
		{name: "strict_rejects", requirePaid: true, wantErr: ErrNotPaid, wantCount: 0},
		{name: "lax_proceeds", requirePaid: false, wantErr: nil, wantCount: 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			db := database.OpenTest()
			defer database.CleanTest(db)

			svc := NewLicenseService(db, nil, nil, tt.requirePaid, nil)

			ev := paidEvent("evt_unpaid")
			ev.PaymentStatus = "unpaid"

			_, err := svc.IssueFromPayment(context.Background(), ev)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
			} else {
				assert.NoError(t, err)
			}

			var count int64
			db.Model(&model.License{}).Count(&count)
			assert.Equal(t, tt.wantCount, count)
		})
	}
}

func TestIssueFromPaymentEmailFailureNonFatal(t *testing.T) {
	db := database.OpenTest()
	defer database.CleanTest(db)

	notifier := &fakeNotifier{fail: true}
	svc := NewLicenseService(db, notifier, nil, true, nil)

	result, err := svc.IssueFromPayment(context.Background(), paidEvent("evt_mail"))
	require.NoError(t, err, "邮件失败不影响签发")

	var event model.PaymentEvent
	require.NoError(t, db.Where("event_id = ?", "evt_mail").First(&event).Error)
	assert.Equal(t, result.LicenseKey, event.LicenseKey)
	require.NotNil(t, event.EmailSent)
	assert.False(t, *event.EmailSent)
	assert.NotEmpty(t, event.EmailError)
}

func issueTestLicense(t *testing.T, svc *LicenseService, eventID string) string {
	t.Helper()
	result, err := svc.IssueFromPayment(context.Background(), paidEvent(eventID))
	require.NoError(t, err)
	return result.LicenseKey
}

func TestActivate(t *testing.T) {
	db := database.OpenTest()
	defer database.CleanTest(db)

	svc := NewLicenseService(db, nil, nil, true, nil)
	key := issueTestLicense(t, svc, "evt_act")

	// 未知密钥
	_, err := svc.Activate(context.Background(), "LP-xyz", "M1")
	assert.ErrorIs(t, err, ErrInvalidKey)

	// 首次激活
	license, err := svc.Activate(context.Background(), key, "M1")
	require.NoError(t, err)
	assert.True(t, license.Activated)
	assert.Equal(t, "M1", license.MachineID)
	require.NotNil(t, license.ActivatedAt)
	firstActivation := *license.ActivatedAt

	// 同机器重复确认：成功且字段不变
	license, err = svc.Activate(context.Background(), key, "M1")
	require.NoError(t, err)
	assert.Equal(t, "M1", license.MachineID)

	var stored model.License
	require.NoError(t, db.Where("key = ?", key).First(&stored).Error)
	assert.Equal(t, "M1", stored.MachineID)
	require.NotNil(t, stored.ActivatedAt)
	assert.WithinDuration(t, firstActivation, *stored.ActivatedAt, time.Second)

	// 其他机器被拒绝，状态不变
	_, err = svc.Activate(context.Background(), key, "M2")
	assert.ErrorIs(t, err, ErrLicenseInUse)

	require.NoError(t, db.Where("key = ?", key).First(&stored).Error)
	assert.Equal(t, "M1", stored.MachineID)
	assert.True(t, stored.Activated)
}

func TestActivateConcurrentFirstActivation(t *testing.T) {
	db := database.OpenTest()
	defer database.CleanTest(db)

	svc := NewLicenseService(db, nil, nil, true, nil)
	key := issueTestLicense(t, svc, "evt_race_act")

	type outcome struct {
		machine string
		err     error
	}
	results := make(chan outcome, 2)
	var wg sync.WaitGroup
	for _, machine := range []string{"MA", "MB"} {
		wg.Add(1)
		go func(m string) {
			defer wg.Done()
			_, err := svc.Activate(context.Background(), key, m)
			results <- outcome{machine: m, err: err}
		}(machine)
	}
	wg.Wait()
	close(results)

	var successes, conflicts int
	for r := range results {
		switch {
		case r.err == nil:
			successes++
		case errors.Is(r.err, ErrLicenseInUse):
			conflicts++
		default:
			t.Fatalf("意外的错误: %v", r.err)
		}
	}
	assert.Equal(t, 1, successes, "两个并发首次激活只能有一个成功")
	assert.Equal(t, 1, conflicts)

	// 不变式: activated == true 当且仅当 machine_id 非空
	var stored model.License
	require.NoError(t, db.Where("key = ?", key).First(&stored).Error)
	assert.True(t, stored.Activated)
	assert.NotEmpty(t, stored.MachineID)
	assert.Contains(t, []string{"MA", "MB"}, stored.MachineID)
}

func TestInvariantActivatedIffBound(t *testing.T) {
	db := database.OpenTest()
	defer database.CleanTest(db)

	svc := NewLicenseService(db, nil, nil, true, nil)
	key := issueTestLicense(t, svc, "evt_inv")

	check := func() {
		var all []model.License
		require.NoError(t, db.Find(&all).Error)
		for _, l := range all {
			assert.Equal(t, l.Activated, l.MachineID != "", "key=%s", l.Key)
		}
	}

	check()
	_, err := svc.Activate(context.Background(), key, "M1")
	require.NoError(t, err)
	check()
	_, err = svc.Activate(context.Background(), key, "M2")
	assert.ErrorIs(t, err, ErrLicenseInUse)
	check()
}
