package capture

import (
	"context"
	"errors"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("Hub sessions", func() {
	var (
		hub   *Hub
		saver *mockSaver
		ctx   context.Context
	)

	amount := func(s string) *AmountText {
		a := AmountText(s)
		return &a
	}
	text := func(s string) *string { return &s }

	BeforeEach(func() {
		hub = NewHub(NewMemorySlots(), testSchedule())
		saver = &mockSaver{}
		ctx = context.Background()
	})

	When("the capture had no amount", func() {
		var session *Session

		BeforeEach(func() {
			Expect(hub.WriteOCR(scope, []byte(`{"status":"success","data":{"amount":0,"merchant":"Swiggy","type":"debit"}}`))).To(Succeed())
			session = hub.Reconcile(ctx, scope)
			Expect(session.State).To(Equal(StateNoAmount))
		})

		It("should refuse to save before manual entry", func() {
			_, err := hub.SaveSession(ctx, scope, session.ID, Edit{Amount: amount("10"), CategoryID: text("food")}, saver)
			Expect(errors.Is(err, ErrNotReady)).To(BeTrue())
			Expect(saver.saved).To(BeEmpty())
		})

		It("should save through manual entry", func() {
			s, err := hub.ManualEntry(scope, session.ID)
			Expect(err).NotTo(HaveOccurred())
			Expect(s.State).To(Equal(StateReady))

			id, err := hub.SaveSession(ctx, scope, session.ID, Edit{Amount: amount("180"), CategoryID: text("food")}, saver)
			Expect(err).NotTo(HaveOccurred())
			Expect(id).To(Equal("expense-1"))
			Expect(saver.saved).To(HaveLen(1))
			Expect(saver.saved[0].Merchant).To(Equal("Swiggy"))
			Expect(string(saver.saved[0].Amount)).To(Equal("180"))
		})

		It("should forget the session once saved", func() {
			_, err := hub.ManualEntry(scope, session.ID)
			Expect(err).NotTo(HaveOccurred())
			_, err = hub.SaveSession(ctx, scope, session.ID, Edit{Amount: amount("180"), CategoryID: text("food")}, saver)
			Expect(err).NotTo(HaveOccurred())

			_, err = hub.Session(scope, session.ID)
			Expect(err).To(MatchError(ErrSessionNotFound))
			_, err = hub.SaveSession(ctx, scope, session.ID, Edit{}, saver)
			Expect(err).To(MatchError(ErrSessionNotFound))
			Expect(saver.saved).To(HaveLen(1))
		})

		It("should leave the session unchanged when validation fails", func() {
			_, err := hub.ManualEntry(scope, session.ID)
			Expect(err).NotTo(HaveOccurred())

			_, err = hub.SaveSession(ctx, scope, session.ID, Edit{Amount: amount("0.001"), CategoryID: text("food")}, saver)
			Expect(errors.Is(err, ErrAmountInvalid)).To(BeTrue())

			s, err := hub.Session(scope, session.ID)
			Expect(err).NotTo(HaveOccurred())
			Expect(s.Draft.Amount).To(BeEmpty())
			Expect(s.Draft.CategoryID).To(BeEmpty())
		})

		It("should not be reachable from another scope", func() {
			_, err := hub.ManualEntry("device-2", session.ID)
			Expect(err).To(MatchError(ErrSessionNotFound))
		})
	})

	When("the capture was ready", func() {
		It("should save the pre-filled draft with a category", func() {
			hub.PublishBridge(scope, []byte(`{"status":"success","data":{"amount":120,"merchant":"Blinkit","type":"debit","confidence":93}}`))
			session := hub.Reconcile(ctx, scope)
			Expect(session.State).To(Equal(StateReady))

			_, err := hub.ManualEntry(scope, session.ID)
			Expect(errors.Is(err, ErrInvalidTransition)).To(BeTrue())

			_, err = hub.SaveSession(ctx, scope, session.ID, Edit{CategoryID: text("groceries")}, saver)
			Expect(err).NotTo(HaveOccurred())
			Expect(string(saver.saved[0].Amount)).To(Equal("120"))
			Expect(saver.saved[0].CategoryID).To(Equal("groceries"))
		})
	})

	When("the capture timed out", func() {
		It("should not keep the session", func() {
			session := hub.Reconcile(ctx, scope)
			Expect(session.State).To(Equal(StateTimedOut))
			Expect(hub.sessions.Len()).To(BeZero())
		})
	})
})

var _ = Describe("SessionStore", func() {
	It("should expire idle sessions", func() {
		now := time.Date(2025, 1, 4, 10, 0, 0, 0, time.UTC)
		store := NewSessionStore(time.Minute)
		store.now = func() time.Time { return now }

		s := newSession(StateReady)
		store.Put(scope, s)
		_, err := store.Get(scope, s.ID)
		Expect(err).NotTo(HaveOccurred())

		now = now.Add(2 * time.Minute)
		_, err = store.Get(scope, s.ID)
		Expect(err).To(MatchError(ErrSessionNotFound))
		Expect(store.Len()).To(BeZero())
	})
})

var _ = Describe("Bridge", func() {
	It("should not remember scopes that were only cleared or watched", func() {
		b := NewBridge()
		b.clear("nobody")
		_, release := b.Channel("watched").(Notifier).Notify()
		release()
		release()

		payloads, watchers := b.scopes()
		Expect(payloads).To(BeZero())
		Expect(watchers).To(BeZero())
	})

	It("should keep the signal while another watcher remains", func() {
		b := NewBridge()
		n := b.Channel("shared").(Notifier)
		first, releaseFirst := n.Notify()
		second, releaseSecond := n.Notify()
		Expect(first).To(Equal(second))

		releaseFirst()
		b.Publish("shared", []byte("{}"))
		Eventually(second).Should(Receive())

		releaseSecond()
		data, ok := b.take("shared")
		Expect(ok).To(BeTrue())
		Expect(data).To(Equal([]byte("{}")))
		payloads, watchers := b.scopes()
		Expect(payloads).To(BeZero())
		Expect(watchers).To(BeZero())
	})

	It("should drop the watcher when a reconcile ends", func() {
		hub := NewHub(NewMemorySlots(), testSchedule())
		for _, s := range []string{"a", "b", "c"} {
			Expect(hub.Clear(s)).To(Succeed())
			Expect(hub.Reconcile(context.Background(), s).State).To(Equal(StateTimedOut))
		}

		payloads, watchers := hub.bridge.scopes()
		Expect(payloads).To(BeZero())
		Expect(watchers).To(BeZero())
	})
})
