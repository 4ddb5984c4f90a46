// SAGE - Secure Agent Guarantee Engine
// Copyright (C) 2025 SAGE-X-project
//
// This file is part of SAGE.
//
// SAGE is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// SAGE is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with SAGE. If not, see <https://www.gnu.org/licenses/>.

package engine

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sage-x-project/dna-messenger-core/internal/delivery"
	"github.com/sage-x-project/dna-messenger-core/internal/dht"
	"github.com/sage-x-project/dna-messenger-core/internal/eventbus"
	"github.com/sage-x-project/dna-messenger-core/internal/identity"
	"github.com/sage-x-project/dna-messenger-core/internal/keyserver"
	"github.com/sage-x-project/dna-messenger-core/internal/logger"
	"github.com/sage-x-project/dna-messenger-core/internal/mailbox"
	"github.com/sage-x-project/dna-messenger-core/internal/metrics"
	"github.com/sage-x-project/dna-messenger-core/internal/profile"
	"github.com/sage-x-project/dna-messenger-core/internal/sendqueue"
	"github.com/sage-x-project/dna-messenger-core/internal/store"
	"github.com/sage-x-project/dna-messenger-core/internal/taskqueue"
	"github.com/sage-x-project/dna-messenger-core/internal/wallets"
	"github.com/sage-x-project/dna-messenger-core/internal/workerpool"
	"github.com/sage-x-project/dna-messenger-core/pkg/dnacrypto"
	"github.com/sage-x-project/dna-messenger-core/pkg/dnaerr"
	"github.com/sage-x-project/dna-messenger-core/pkg/fingerprint"
)

// RotationInterval is the outbox day-bucket rotation tick (spec §4.7 "every
// ~60s").
const RotationInterval = 60 * time.Second

// Deps bundles the external collaborators a new Engine is built from. Every
// field has a reference default used when left nil (see New), matching the
// teacher's constructor-with-defaults convention.
type Deps struct {
	Dht           dht.Client
	Dsa           dnacrypto.Dsa
	Kem           dnacrypto.Kem
	WalletDeriver wallets.Deriver
	ContactsDb    store.ContactsDb
	ProfileStore  store.ProfileCacheStore
	MessageStore  store.MessageStore
	Log           logger.Logger
	Workers       int
}

// Engine is the §3 "Engine State (singleton per process)" struct plus the
// C10 dispatch loop. One process holds exactly one Engine; callers reach it
// only through the public API methods, which enqueue a Task and return a
// non-zero request id (spec §6).
type Engine struct {
	dataDir string
	log     logger.Logger

	dht           dht.Client
	vault         *identity.Vault
	keyserver     *keyserver.Protocol
	profileCache  *profile.Cache
	walletDeriver wallets.Deriver

	contactsDb   store.ContactsDb
	profileStore store.ProfileCacheStore
	messageStore store.MessageStore

	taskQueue *taskqueue.Queue
	pool      *workerpool.Pool
	bus       *eventbus.Bus

	sendQueue *sendqueue.Queue

	mu                 sync.RWMutex
	state              LifecycleState
	dhtReady           bool
	selfFingerprint    string
	identityLoaded     bool
	keysEncrypted      bool
	sessionPassword    string
	sessionKeys        identity.KeyMaterial
	blockchainWallets  wallets.Addresses
	nameCache          map[string]string // fingerprint -> registered name

	outbox   *mailbox.Registry
	delivery *delivery.Tracker

	rotationCancel context.CancelFunc

	groupsMu      sync.Mutex
	groups        map[string]*localGroup
	nextGroupID   uint64

	feedMu       sync.Mutex
	feedPosts    []localFeedPost
	nextFeedID   uint64

	nextRequestID      atomic.Uint64
	shutdownRequested  atomic.Bool
	presenceActive     atomic.Bool
	profilePublishedAt atomic.Int64
}

// New builds an Engine rooted at dataDir (spec §3 data_dir). deps fields
// left nil fall back to reference implementations: an in-memory DHT
// double, Kyber1024/Dilithium5, an in-memory store triple, and a classical
// wallet deriver.
func New(dataDir string, deps Deps) *Engine {
	if deps.Dht == nil {
		deps.Dht = dht.NewMemory()
	}
	if deps.WalletDeriver == nil {
		deps.WalletDeriver = wallets.NewClassicalDeriver()
	}
	if deps.ContactsDb == nil || deps.ProfileStore == nil || deps.MessageStore == nil {
		mem := store.NewMemory()
		if deps.ContactsDb == nil {
			deps.ContactsDb = mem
		}
		if deps.ProfileStore == nil {
			deps.ProfileStore = mem
		}
		if deps.MessageStore == nil {
			deps.MessageStore = mem
		}
	}
	if deps.Log == nil {
		deps.Log = logger.GetDefaultLogger()
	}
	if deps.Workers == 0 {
		deps.Workers = workerpool.MinWorkers
	}

	e := &Engine{
		dataDir:       dataDir,
		log:           deps.Log.WithTag("engine"),
		dht:           deps.Dht,
		vault:         identity.New(dataDir, deps.Kem, deps.Dsa, deps.Log),
		keyserver:     keyserver.New(deps.Dht, deps.Dsa),
		walletDeriver: deps.WalletDeriver,
		contactsDb:    deps.ContactsDb,
		profileStore:  deps.ProfileStore,
		messageStore:  deps.MessageStore,
		taskQueue:     taskqueue.New(),
		bus:           eventbus.New(),
		sendQueue:     sendqueue.New(sendqueue.MaxCapacity),
		state:         StateCreated,
		nameCache:     make(map[string]string),
		groups:        make(map[string]*localGroup),
	}
	e.profileCache = profile.New(e.keyserver, deps.Log)
	e.pool = workerpool.New(e.taskQueue, deps.Workers, e.dispatch, deps.Log)
	e.nextRequestID.Store(0)
	return e
}

// Start transitions Created -> Running and launches the worker pool (spec
// §4.10 Engine lifecycle).
func (e *Engine) Start(ctx context.Context) {
	e.mu.Lock()
	if e.state != StateCreated {
		e.mu.Unlock()
		return
	}
	e.state = StateRunning
	e.mu.Unlock()

	e.pool.Start(ctx)
	e.log.Info("engine started")
}

// Subscribe registers the single EventBus observer (spec §4.3).
func (e *Engine) Subscribe(obs eventbus.Observer, userData interface{}) {
	e.bus.Subscribe(obs, userData)
}

// Unsubscribe clears the EventBus observer.
func (e *Engine) Unsubscribe() {
	e.bus.Unsubscribe()
}

// SetDhtStatus is called by the DHT client's own connection lifecycle
// (spec §9: "owned handle passed into the DHT client on construction" —
// here that handle is the Engine itself, invoked from outside any task
// mutex). Running -> DhtReady triggers listener setup and profile
// prefetch if an identity is already loaded; the reverse transition never
// tears listeners down (reconnect is idempotent, spec §4.10).
func (e *Engine) SetDhtStatus(connected bool) {
	e.mu.Lock()
	wasReady := e.dhtReady
	e.dhtReady = connected
	loaded := e.identityLoaded
	selfFP := e.selfFingerprint
	e.mu.Unlock()

	if connected {
		e.bus.Dispatch(eventbus.Event{Kind: eventbus.DhtConnected})
		if !wasReady && loaded {
			e.startListenersForLoadedIdentity(context.Background(), selfFP)
		}
	} else {
		e.bus.Dispatch(eventbus.Event{Kind: eventbus.DhtDisconnected})
	}
}

// Destroy transitions to Destroyed: stops the rotation ticker, cancels the
// outbox listeners, stops the worker pool, and zeros session secrets. The
// delivery tracker's watermark listeners are left registered.
func (e *Engine) Destroy() {
	e.mu.Lock()
	if e.state == StateDestroyed {
		e.mu.Unlock()
		return
	}
	wasLoaded := e.identityLoaded
	e.shutdownRequested.Store(true)
	if e.rotationCancel != nil {
		e.rotationCancel()
	}
	if e.outbox != nil {
		e.outbox.CancelAll()
	}
	e.sessionKeys.Zero()
	e.sessionPassword = ""
	e.identityLoaded = false
	e.state = StateDestroyed
	e.mu.Unlock()

	if wasLoaded {
		metrics.SessionsActive.Dec()
		metrics.SessionsClosed.Inc()
	}

	e.pool.Stop()
	e.log.Info("engine destroyed")
}

// nextID allocates the next non-zero monotonic request id (spec §3
// invariant "request_id is never 0").
func (e *Engine) nextID() uint64 {
	return e.nextRequestID.Add(1)
}

// submit enqueues a task, returning 0 (the reserved invalid id) if the
// queue is full — the producer's back-pressure signal (spec §4.1).
func (e *Engine) submit(taskType TaskType, params interface{}, cb Callback, userData interface{}) uint64 {
	id := e.nextID()
	task := taskqueue.Task{
		RequestID: id,
		Type:      int(taskType),
		Params:    params,
		Callback:  cb,
		UserData:  userData,
	}
	if !e.taskQueue.Push(task) {
		e.log.Warn("task queue full, rejecting submission", logger.String("task_type", taskType.String()))
		return 0
	}
	return id
}

// complete invokes t's callback exactly once, tolerating a nil callback
// (spec §4.10 "exactly one callback invocation... if a callback is
// attached").
func complete(t taskqueue.Task, code dnaerr.Code, result interface{}) {
	cb, ok := t.Callback.(Callback)
	if !ok || cb == nil {
		return
	}
	cb(t.RequestID, code, result, t.UserData)
}

// requireIdentity reports ok=false if no identity is currently loaded.
func (e *Engine) requireIdentity() (selfFP string, keys identity.KeyMaterial, ok bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if !e.identityLoaded {
		return "", identity.KeyMaterial{}, false
	}
	return e.selfFingerprint, e.sessionKeys, true
}

// dispatch is the workerpool.Handler: an exhaustive switch over TaskType
// (spec §9 "tagged task variants... dispatch is exhaustive by
// construction").
func (e *Engine) dispatch(ctx context.Context, t taskqueue.Task) {
	switch TaskType(t.Type) {
	case TaskListIdentities:
		e.handleListIdentities(ctx, t)
	case TaskCreateIdentity:
		e.handleCreateIdentity(ctx, t)
	case TaskLoadIdentity:
		e.handleLoadIdentity(ctx, t)
	case TaskDeleteIdentity:
		e.handleDeleteIdentity(ctx, t)
	case TaskRegisterName:
		e.handleRegisterName(ctx, t)
	case TaskGetDisplayName:
		e.handleGetDisplayName(ctx, t)
	case TaskGetAvatar:
		e.handleGetAvatar(ctx, t)
	case TaskLookupName:
		e.handleLookupName(ctx, t)
	case TaskGetProfile:
		e.handleGetProfile(ctx, t)
	case TaskLookupProfile:
		e.handleLookupProfile(ctx, t)
	case TaskUpdateProfile:
		e.handleUpdateProfile(ctx, t)
	case TaskGetContacts:
		e.handleGetContacts(ctx, t)
	case TaskAddContact:
		e.handleAddContact(ctx, t)
	case TaskRemoveContact:
		e.handleRemoveContact(ctx, t)
	case TaskSendContactRequest:
		e.handleSendContactRequest(ctx, t)
	case TaskGetContactRequests:
		e.handleGetContactRequests(ctx, t)
	case TaskApproveContactRequest:
		e.handleApproveContactRequest(ctx, t)
	case TaskDenyContactRequest:
		e.handleDenyContactRequest(ctx, t)
	case TaskBlockUser:
		e.handleBlockUser(ctx, t)
	case TaskUnblockUser:
		e.handleUnblockUser(ctx, t)
	case TaskGetBlockedUsers:
		e.handleGetBlockedUsers(ctx, t)
	case TaskSendMessage:
		e.handleSendMessage(ctx, t)
	case TaskGetConversation:
		e.handleGetConversation(ctx, t)
	case TaskCheckOfflineMessages:
		e.handleCheckOfflineMessages(ctx, t)
	case TaskSyncContactsToDht:
		e.handleSyncContactsToDht(ctx, t)
	case TaskSyncContactsFromDht:
		e.handleSyncContactsFromDht(ctx, t)
	case TaskGetRegisteredName:
		e.handleGetRegisteredName(ctx, t)
	case TaskListWallets, TaskGetBalances, TaskSendTokens, TaskGetTransactions:
		e.handleWalletTask(ctx, t)
	case TaskGetGroups, TaskCreateGroup, TaskSendGroupMessage, TaskGetInvitations,
		TaskAcceptInvitation, TaskRejectInvitation, TaskSyncGroups:
		e.handleGroupTask(ctx, t)
	case TaskRefreshPresence, TaskLookupPresence:
		e.handlePresenceTask(ctx, t)
	case TaskGetFeedPosts, TaskCreateFeedPost, TaskAddFeedComment, TaskCastFeedVote,
		TaskGetFeedVotes, TaskCastCommentVote, TaskGetCommentVotes:
		e.handleFeedTask(ctx, t)
	default:
		complete(t, dnaerr.InvalidArg, nil)
	}
}

// startListenersForLoadedIdentity runs the §4.4 load-sequence step 6
// offline-message scan, then sets up step 7's C7/C8 listeners for every
// contact, starts the rotation ticker, and kicks off profile prefetch
// (also reused on the DhtReady transition, spec §4.10).
func (e *Engine) startListenersForLoadedIdentity(ctx context.Context, selfFP string) {
	e.mu.Lock()
	if e.outbox == nil {
		e.outbox = mailbox.New(e.dht, selfFP, func(contactFP string) {
			e.bus.Dispatch(eventbus.Event{Kind: eventbus.OutboxUpdated, Fingerprint: selfFP, RecipientFP: contactFP})
		}, e.log)
	}
	if e.delivery == nil {
		e.delivery = delivery.New(e.dht, selfFP, func(recipientFP string, seq uint64) {
			n, _ := e.messageStore.MarkDeliveredUpTo(ctx, recipientFP, seq)
			if n > 0 {
				e.bus.Dispatch(eventbus.Event{
					Kind:        eventbus.MessageDelivered,
					Fingerprint: selfFP,
					RecipientFP: recipientFP,
					SeqNum:      seq,
				})
			}
		}, e.log)
	}
	outbox := e.outbox
	tracker := e.delivery
	if e.rotationCancel == nil {
		rotateCtx, cancel := context.WithCancel(context.Background())
		e.rotationCancel = cancel
		outbox.RunRotationTicker(rotateCtx, RotationInterval)
	}
	e.mu.Unlock()

	contacts, err := e.contactsDb.GetContacts(ctx)
	if err != nil {
		e.log.Warn("failed to load contacts for listener setup", logger.Error(err))
		return
	}

	// Step 6: scan every contact's outbox for messages that arrived while
	// this identity was offline, before step 7 wires up live listeners for
	// anything sent from here on.
	if _, keys, ok := e.requireIdentity(); ok {
		if n := e.scanOfflineMessages(ctx, selfFP, keys, contacts); n > 0 {
			e.log.Info("recovered offline messages during load", logger.Int("count", n))
		}
	}

	for _, c := range contacts {
		if _, err := outbox.Listen(c.IdentityFP); err != nil {
			e.log.Warn("failed to start outbox listener", logger.String("contact_fp", c.IdentityFP), logger.Error(err))
		}
		tracker.Track(c.IdentityFP)
	}

	e.profileCache.Prefetch(ctx, fingerprintsOf(contacts))
}

func fingerprintsOf(contacts []store.Contact) []string {
	out := make([]string, len(contacts))
	for i, c := range contacts {
		out[i] = c.IdentityFP
	}
	return out
}

// validFingerprint is the spec §9 canonical check: 128 hex chars, nothing
// else (the source's 132-char filename scan is a documented bug, not
// behavior to reproduce).
func validFingerprint(s string) bool {
	_, err := fingerprint.Parse(s)
	return err == nil
}
