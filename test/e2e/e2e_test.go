// test/e2e/e2e_test.go
package e2e

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"course-notify/internal/common/logger"
	"course-notify/internal/models"
	"course-notify/internal/notify/delivery"
	"course-notify/internal/notify/ledger"
	"course-notify/internal/notify/milestone"
	"course-notify/internal/notify/store"
	"course-notify/internal/notify/template"
	"course-notify/internal/notify/transport"

	runmilestones "course-notify/internal/workers/notification/run-milestones"
	sendnotification "course-notify/internal/workers/notification/send-notification"
)

const instructorAccount = "acct-ins-1"

type outbox struct {
	mu   sync.Mutex
	name string
	sent []transport.Message
}

func (o *outbox) Name() string { return o.name }

func (o *outbox) Send(_ context.Context, msg transport.Message) (*transport.Result, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.sent = append(o.sent, msg)
	return &transport.Result{Provider: o.name, ProviderReference: fmt.Sprintf("%s-%d", o.name, len(o.sent))}, nil
}

func (o *outbox) messages() []transport.Message {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]transport.Message(nil), o.sent...)
}

// engine wires the same components as cmd/notify-engine over the in-memory
// stores.
type engine struct {
	mem       *store.Memory
	ledger    *ledger.Ledger
	email     *outbox
	sms       *outbox
	loader    *delivery.ContextLoader
	sender    *delivery.Orchestrator
	scheduler *milestone.Scheduler
}

func date(y int, m time.Month, d int) *time.Time {
	t := time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
	return &t
}

func newEngine(t *testing.T, now time.Time) *engine {
	t.Helper()
	log := logger.NewTestLogger(t)
	loc, err := time.LoadLocation("America/Los_Angeles")
	require.NoError(t, err)

	mem := store.NewMemory()
	mem.SetClock(func() time.Time { return now })

	mem.PutTemplate(models.Template{ID: "enrollment-confirmed", Channel: models.ChannelEmail, Active: true,
		Subject: "You're enrolled in {{courseName}}",
		Body:    "Hi {{firstName}}, see you on {{startDate}} at {{location}}. Questions? {{supportEmail}}"})
	mem.PutTemplate(models.Template{ID: "license-renewal-45-sms", Channel: models.ChannelSMS, Active: true,
		Body: "{{firstName}}, boater license {{licenseNumber}} expires in {{milestone.daysUntil}} days ({{expirationDate}})."})
	mem.PutTemplate(models.Template{ID: "license-renewal-90", Channel: models.ChannelEmail, Active: true,
		Subject: "Renew your boater license", Body: "Hi {{firstName}}, your license expires {{expirationDate}}."})

	mem.PutInstructor(models.Instructor{ID: "ins-1", FirstName: "Grace", LastName: "Hopper", Email: "grace@example.com", CreditAccountID: instructorAccount})
	mem.PutCourse(models.Course{ID: "crs-1", Name: "Boating Safety Basics", PriceCents: 4900, InstructorID: "ins-1"})
	mem.PutSchedule(models.Schedule{ID: "sch-1", CourseID: "crs-1", Location: "Pier 39 Marina",
		StartsAt: time.Date(2026, 11, 5, 16, 0, 0, 0, time.UTC), EndsAt: time.Date(2026, 11, 5, 20, 0, 0, 0, time.UTC)})

	mem.PutStudent(models.Student{ID: "stu-due", FirstName: "Ada", LastName: "Lovelace", Email: "ada@example.com",
		Phone: "(650) 253-0001", LicenseNumber: "BL-1001", LicenseExpiration: date(2026, 11, 29), InstructorID: "ins-1"})
	mem.PutStudent(models.Student{ID: "stu-enrolled", FirstName: "Alan", LastName: "Turing", Email: "alan@example.com",
		Phone: "(650) 253-0002", LicenseNumber: "BL-1002", LicenseExpiration: date(2026, 11, 29), InstructorID: "ins-1"})
	mem.PutStudent(models.Student{ID: "stu-later", FirstName: "Edsger", LastName: "Dijkstra", Email: "edsger@example.com",
		Phone: "(650) 253-0003", LicenseExpiration: date(2026, 12, 10), InstructorID: "ins-1"})
	mem.PutEnrollment(models.Enrollment{ID: "enr-1", StudentID: "stu-enrolled", ScheduleID: "sch-1", Status: "confirmed", CreatedAt: now.Add(-48 * time.Hour)})

	ledgerStore := ledger.NewMemoryStore()
	ledgerStore.OpenAccount(instructorAccount, 5)
	credits := ledger.New(ledgerStore, log, nil)

	email, sms := &outbox{name: "email"}, &outbox{name: "sms"}
	sender := delivery.New(
		delivery.Deps{
			Templates:  mem.Templates(),
			Recipients: mem.Recipients(),
			Logs:       mem.DeliveryLogs(),
			Ledger:     credits,
			Transports: transport.NewRegistry(map[models.Channel]transport.Transport{
				models.ChannelEmail: email,
				models.ChannelSMS:   sms,
			}),
		},
		delivery.Options{MeteredChannels: []models.Channel{models.ChannelSMS}, Workers: 2},
		template.NewResolver(template.DefaultAliases()),
		log, nil,
	)
	loader := delivery.NewContextLoader(mem, template.CompanyInfo{Name: "Boater Safety Courses", SupportEmail: "support@example.com"}, loc)

	scheduler := milestone.New(
		[]milestone.RuleTable{{
			Name: "renewal",
			Rules: []models.MilestoneRule{
				{Type: "renewal_90_days", OffsetDays: -90, Channel: models.ChannelEmail, TemplateID: "license-renewal-90"},
				{Type: "renewal_45_days", OffsetDays: -45, Channel: models.ChannelSMS, TemplateID: "license-renewal-45-sms"},
			},
			Source:     mem.LicenseExpirations(),
			Suppressor: mem.ActiveRenewalEnrollment(),
		}},
		mem.Fired(),
		milestone.NewDispatcher(sender, loader),
		nil, loc, log, nil,
	).WithClock(func() time.Time { return now })

	return &engine{mem: mem, ledger: credits, email: email, sms: sms, loader: loader, sender: sender, scheduler: scheduler}
}

func TestWorkflowSendsEnrollmentConfirmation(t *testing.T) {
	now := time.Date(2026, 10, 15, 15, 0, 0, 0, time.UTC)
	e := newEngine(t, now)

	h := sendnotification.NewHandler(&sendnotification.Config{Timeout: 5 * time.Second}, e.sender, e.loader, logger.NewTestLogger(t))
	out, err := h.Execute(context.Background(), &sendnotification.Input{
		TemplateID:   "enrollment-confirmed",
		RecipientIDs: []string{"stu-enrolled"},
		AccountID:    instructorAccount,
		Refs:         models.EntityRefs{EnrollmentID: "enr-1"},
	})
	require.NoError(t, err)
	assert.Equal(t, 1, out.Sent)
	assert.Equal(t, 0, out.Failed)

	msgs := e.email.messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, "alan@example.com", msgs[0].To)
	assert.Equal(t, "You're enrolled in Boating Safety Basics", msgs[0].Subject)
	assert.Equal(t, "Hi Alan, see you on November 5, 2026 at Pier 39 Marina. Questions? support@example.com", msgs[0].Body)

	balance, err := e.ledger.Balance(context.Background(), instructorAccount)
	require.NoError(t, err)
	assert.Equal(t, int64(5), balance, "email is not metered")

	logs := e.mem.DeliveryLogs().All()
	require.Len(t, logs, 1)
	assert.Equal(t, models.DeliverySent, logs[0].Status)
	assert.Equal(t, "email-1", logs[0].ExternalReference)
}

func TestMilestoneRunFiresOncePerDay(t *testing.T) {
	now := time.Date(2026, 10, 15, 15, 0, 0, 0, time.UTC)
	e := newEngine(t, now)
	ctx := context.Background()

	report, err := e.scheduler.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Fired)
	assert.Equal(t, 1, report.Suppressed, "stu-enrolled already has an upcoming course")
	assert.Zero(t, report.Failed)

	msgs := e.sms.messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, "+16502530001", msgs[0].To)
	assert.Equal(t, "Ada, boater license BL-1001 expires in 45 days (November 29, 2026).", msgs[0].Body)
	assert.Empty(t, e.email.messages(), "no entity is 90 days out")

	balance, err := e.ledger.Balance(ctx, instructorAccount)
	require.NoError(t, err)
	assert.Equal(t, int64(4), balance)

	records := e.mem.Fired().Records()
	require.Len(t, records, 1)
	assert.Equal(t, "stu-due", records[0].EntityID)
	assert.Equal(t, "renewal_45_days", records[0].MilestoneType)
	assert.Equal(t, "2026-11-29", records[0].AnchorSnapshot)

	// A BPMN timer triggering the same pass later that day sends nothing new.
	worker := runmilestones.NewHandler(&runmilestones.Config{Timeout: 5 * time.Second}, e.scheduler, logger.NewTestLogger(t))
	second, err := worker.Execute(ctx)
	require.NoError(t, err)
	assert.Zero(t, second.Fired)
	assert.Equal(t, 1, second.AlreadyFired)
	assert.Len(t, e.sms.messages(), 1)

	balance, err = e.ledger.Balance(ctx, instructorAccount)
	require.NoError(t, err)
	assert.Equal(t, int64(4), balance)
}

func TestMilestoneRunWithoutCredit(t *testing.T) {
	now := time.Date(2026, 10, 15, 15, 0, 0, 0, time.UTC)
	e := newEngine(t, now)
	ctx := context.Background()

	_, err := e.ledger.Debit(ctx, instructorAccount, 5, "drain")
	require.NoError(t, err)

	report, err := e.scheduler.Run(ctx)
	require.NoError(t, err)
	assert.Zero(t, report.Fired)
	assert.Equal(t, 1, report.Failed)
	assert.Empty(t, e.sms.messages())
	assert.Empty(t, e.mem.Fired().Records(), "an unsent milestone is retried on the next run")
	require.NotEmpty(t, report.Errors)
	assert.True(t, strings.Contains(report.Errors[0], "stu-due"))
}
