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

// This file covers the four task categories the spec names only by their
// closed-set task types, without the field-level detail given to messaging
// and contacts (spec §4.10's task list plus the Group/Presence
// ListenerEntry kinds and the per-identity <fp>_groups.db file): wallets
// (delegated out of CORE per spec §1 but dispatched here), groups, feed,
// and presence. Groups/feed get a minimal, process-local reference
// implementation rather than a DHT wire protocol the spec never specifies;
// presence and wallets follow the spec's explicit DHT/WalletDeriver shapes.
package engine

import (
	"context"
	"time"

	"github.com/sage-x-project/dna-messenger-core/internal/eventbus"
	"github.com/sage-x-project/dna-messenger-core/internal/taskqueue"
	"github.com/sage-x-project/dna-messenger-core/internal/wallets"
	"github.com/sage-x-project/dna-messenger-core/pkg/dnaerr"
)

// --- Wallets (delegated out of CORE, spec §1) -------------------------------

func (e *Engine) ListWallets(cb Callback, userData interface{}) uint64 {
	return e.submit(TaskListWallets, nil, cb, userData)
}

func (e *Engine) GetBalances(cb Callback, userData interface{}) uint64 {
	return e.submit(TaskGetBalances, nil, cb, userData)
}

func (e *Engine) SendTokens(chain wallets.Chain, toAddress, amount string, cb Callback, userData interface{}) uint64 {
	return e.submit(TaskSendTokens, WalletTaskParams{Chain: chain, ToAddress: toAddress, Amount: amount}, cb, userData)
}

func (e *Engine) GetTransactions(limit int, cb Callback, userData interface{}) uint64 {
	return e.submit(TaskGetTransactions, WalletTaskParams{Limit: limit}, cb, userData)
}

func (e *Engine) handleWalletTask(ctx context.Context, t taskqueue.Task) {
	e.mu.RLock()
	addrs := e.blockchainWallets
	e.mu.RUnlock()

	switch TaskType(t.Type) {
	case TaskListWallets:
		complete(t, dnaerr.OK, addrs)
	case TaskGetBalances:
		balances, err := e.walletDeriver.GetBalances(ctx, addrs)
		if err != nil {
			complete(t, dnaerr.CodeOf(err), nil)
			return
		}
		complete(t, dnaerr.OK, balances)
	case TaskSendTokens:
		p := t.Params.(WalletTaskParams)
		txHash, err := e.walletDeriver.SendTokens(ctx, p.Chain, p.ToAddress, p.Amount)
		if err != nil {
			complete(t, dnaerr.CodeOf(err), nil)
			return
		}
		complete(t, dnaerr.OK, txHash)
	case TaskGetTransactions:
		p := t.Params.(WalletTaskParams)
		txs, err := e.walletDeriver.GetTransactions(ctx, addrs, p.Limit)
		if err != nil {
			complete(t, dnaerr.CodeOf(err), nil)
			return
		}
		complete(t, dnaerr.OK, txs)
	}
}

// --- Presence ----------------------------------------------------------------

func (e *Engine) RefreshPresence(cb Callback, userData interface{}) uint64 {
	return e.submit(TaskRefreshPresence, nil, cb, userData)
}

func (e *Engine) LookupPresence(fp string, cb Callback, userData interface{}) uint64 {
	return e.submit(TaskLookupPresence, GetProfileParams{Fingerprint: fp}, cb, userData)
}

const presenceTTL = 5 * time.Minute

func presenceKey(fp string) []byte { return []byte("presence:" + fp) }

func (e *Engine) handlePresenceTask(ctx context.Context, t taskqueue.Task) {
	switch TaskType(t.Type) {
	case TaskRefreshPresence:
		selfFP, _, ok := e.requireIdentity()
		if !ok {
			complete(t, dnaerr.NotInitialized, nil)
			return
		}
		if _, err := e.dht.PutSigned(ctx, presenceKey(selfFP), []byte("online"), selfFP, presenceTTL); err != nil {
			complete(t, dnaerr.New(dnaerr.Network, err).Code(), nil)
			return
		}
		e.presenceActive.Store(true)
		e.bus.Dispatch(eventbus.Event{Kind: eventbus.PresenceChanged, Fingerprint: selfFP})
		complete(t, dnaerr.OK, nil)

	case TaskLookupPresence:
		p := t.Params.(GetProfileParams)
		_, online, err := e.dht.Get(ctx, presenceKey(p.Fingerprint))
		if err != nil {
			complete(t, dnaerr.New(dnaerr.Network, err).Code(), nil)
			return
		}
		complete(t, dnaerr.OK, online)
	}
}

// --- Groups ------------------------------------------------------------------
//
// The spec names CREATE_GROUP/SEND_GROUP_MESSAGE/GET_INVITATIONS/
// ACCEPT_INVITATION/REJECT_INVITATION/SYNC_GROUPS and a <fp>_groups.db file
// but never specifies a wire protocol; this is a process-local reference
// model (no DHT persistence) standing in for that store.

type localGroup struct {
	ID          string
	Name        string
	MemberFPs   []string
	Messages    []GroupMessage
	Invitations map[string]bool // pending invitee fp -> true
}

// GroupMessage is a CREATE_GROUP/SEND_GROUP_MESSAGE result item.
type GroupMessage struct {
	GroupID   string
	SenderFP  string
	Plaintext []byte
	SentAtMS  int64
}

// GroupSummary is a GET_GROUPS result item.
type GroupSummary struct {
	ID        string
	Name      string
	MemberFPs []string
}

type CreateGroupParams struct {
	Name      string
	MemberFPs []string
}

type SendGroupMessageParams struct {
	GroupID   string
	Plaintext []byte
}

type GroupIDParams struct {
	GroupID string
}

func (e *Engine) GetGroups(cb Callback, userData interface{}) uint64 {
	return e.submit(TaskGetGroups, nil, cb, userData)
}

func (e *Engine) CreateGroup(name string, memberFPs []string, cb Callback, userData interface{}) uint64 {
	return e.submit(TaskCreateGroup, CreateGroupParams{Name: name, MemberFPs: memberFPs}, cb, userData)
}

func (e *Engine) SendGroupMessage(groupID string, plaintext []byte, cb Callback, userData interface{}) uint64 {
	return e.submit(TaskSendGroupMessage, SendGroupMessageParams{GroupID: groupID, Plaintext: plaintext}, cb, userData)
}

func (e *Engine) GetInvitations(cb Callback, userData interface{}) uint64 {
	return e.submit(TaskGetInvitations, nil, cb, userData)
}

func (e *Engine) AcceptInvitation(groupID string, cb Callback, userData interface{}) uint64 {
	return e.submit(TaskAcceptInvitation, GroupIDParams{GroupID: groupID}, cb, userData)
}

func (e *Engine) RejectInvitation(groupID string, cb Callback, userData interface{}) uint64 {
	return e.submit(TaskRejectInvitation, GroupIDParams{GroupID: groupID}, cb, userData)
}

func (e *Engine) SyncGroups(cb Callback, userData interface{}) uint64 {
	return e.submit(TaskSyncGroups, nil, cb, userData)
}

func (e *Engine) handleGroupTask(ctx context.Context, t taskqueue.Task) {
	selfFP, _, ok := e.requireIdentity()
	if !ok {
		complete(t, dnaerr.NotInitialized, nil)
		return
	}

	switch TaskType(t.Type) {
	case TaskGetGroups:
		e.groupsMu.Lock()
		out := make([]GroupSummary, 0, len(e.groups))
		for _, g := range e.groups {
			out = append(out, GroupSummary{ID: g.ID, Name: g.Name, MemberFPs: append([]string{}, g.MemberFPs...)})
		}
		e.groupsMu.Unlock()
		complete(t, dnaerr.OK, out)

	case TaskCreateGroup:
		p := t.Params.(CreateGroupParams)
		e.groupsMu.Lock()
		e.nextGroupID++
		id := selfFP[:8] + "-" + time.Now().UTC().Format("20060102150405") + "-" + itoa(e.nextGroupID)
		members := append([]string{selfFP}, p.MemberFPs...)
		invitations := make(map[string]bool, len(p.MemberFPs))
		for _, fp := range p.MemberFPs {
			invitations[fp] = true
		}
		e.groups[id] = &localGroup{ID: id, Name: p.Name, MemberFPs: members, Invitations: invitations}
		e.groupsMu.Unlock()
		complete(t, dnaerr.OK, id)

	case TaskSendGroupMessage:
		p := t.Params.(SendGroupMessageParams)
		e.groupsMu.Lock()
		g, ok := e.groups[p.GroupID]
		if !ok {
			e.groupsMu.Unlock()
			complete(t, dnaerr.NotFound, nil)
			return
		}
		msg := GroupMessage{GroupID: p.GroupID, SenderFP: selfFP, Plaintext: p.Plaintext, SentAtMS: nowMS()}
		g.Messages = append(g.Messages, msg)
		e.groupsMu.Unlock()
		e.bus.Dispatch(eventbus.Event{Kind: eventbus.GroupMessageReceived, Fingerprint: selfFP, RecipientFP: p.GroupID})
		complete(t, dnaerr.OK, nil)

	case TaskGetInvitations:
		e.groupsMu.Lock()
		var ids []string
		for id, g := range e.groups {
			if g.Invitations[selfFP] {
				ids = append(ids, id)
			}
		}
		e.groupsMu.Unlock()
		complete(t, dnaerr.OK, ids)

	case TaskAcceptInvitation:
		p := t.Params.(GroupIDParams)
		e.groupsMu.Lock()
		g, ok := e.groups[p.GroupID]
		if !ok || !g.Invitations[selfFP] {
			e.groupsMu.Unlock()
			complete(t, dnaerr.NotFound, nil)
			return
		}
		delete(g.Invitations, selfFP)
		g.MemberFPs = append(g.MemberFPs, selfFP)
		e.groupsMu.Unlock()
		complete(t, dnaerr.OK, nil)

	case TaskRejectInvitation:
		p := t.Params.(GroupIDParams)
		e.groupsMu.Lock()
		if g, ok := e.groups[p.GroupID]; ok {
			delete(g.Invitations, selfFP)
		}
		e.groupsMu.Unlock()
		complete(t, dnaerr.OK, nil)

	case TaskSyncGroups:
		// No DHT-backed group store to reconcile against; local state is
		// authoritative for this reference model.
		complete(t, dnaerr.OK, nil)
	}
}

// --- Feed --------------------------------------------------------------------

type localFeedComment struct {
	ID       string
	AuthorFP string
	Body     string
	Votes    map[string]int // voter fp -> +1/-1
}

type localFeedPost struct {
	ID       string
	AuthorFP string
	Body     string
	Votes    map[string]int
	Comments []*localFeedComment
}

// FeedPostView is a GET_FEED_POSTS result item.
type FeedPostView struct {
	ID       string
	AuthorFP string
	Body     string
	Score    int
}

type CreateFeedPostParams struct {
	Body string
}

type FeedCommentParams struct {
	PostID string
	Body   string
}

type FeedVoteParams struct {
	PostID string
	Up     bool
}

type CommentVoteParams struct {
	PostID, CommentID string
	Up                bool
}

func (e *Engine) GetFeedPosts(cb Callback, userData interface{}) uint64 {
	return e.submit(TaskGetFeedPosts, nil, cb, userData)
}

func (e *Engine) CreateFeedPost(body string, cb Callback, userData interface{}) uint64 {
	return e.submit(TaskCreateFeedPost, CreateFeedPostParams{Body: body}, cb, userData)
}

func (e *Engine) AddFeedComment(postID, body string, cb Callback, userData interface{}) uint64 {
	return e.submit(TaskAddFeedComment, FeedCommentParams{PostID: postID, Body: body}, cb, userData)
}

func (e *Engine) CastFeedVote(postID string, up bool, cb Callback, userData interface{}) uint64 {
	return e.submit(TaskCastFeedVote, FeedVoteParams{PostID: postID, Up: up}, cb, userData)
}

func (e *Engine) GetFeedVotes(postID string, cb Callback, userData interface{}) uint64 {
	return e.submit(TaskGetFeedVotes, FeedCommentParams{PostID: postID}, cb, userData)
}

func (e *Engine) CastCommentVote(postID, commentID string, up bool, cb Callback, userData interface{}) uint64 {
	return e.submit(TaskCastCommentVote, CommentVoteParams{PostID: postID, CommentID: commentID, Up: up}, cb, userData)
}

func (e *Engine) GetCommentVotes(postID, commentID string, cb Callback, userData interface{}) uint64 {
	return e.submit(TaskGetCommentVotes, CommentVoteParams{PostID: postID, CommentID: commentID}, cb, userData)
}

func (e *Engine) handleFeedTask(ctx context.Context, t taskqueue.Task) {
	selfFP, _, ok := e.requireIdentity()
	if !ok {
		complete(t, dnaerr.NotInitialized, nil)
		return
	}

	switch TaskType(t.Type) {
	case TaskGetFeedPosts:
		e.feedMu.Lock()
		out := make([]FeedPostView, len(e.feedPosts))
		for i, p := range e.feedPosts {
			out[i] = FeedPostView{ID: p.ID, AuthorFP: p.AuthorFP, Body: p.Body, Score: sumVotes(p.Votes)}
		}
		e.feedMu.Unlock()
		complete(t, dnaerr.OK, out)

	case TaskCreateFeedPost:
		p := t.Params.(CreateFeedPostParams)
		e.feedMu.Lock()
		e.nextFeedID++
		id := itoa(e.nextFeedID)
		e.feedPosts = append(e.feedPosts, localFeedPost{ID: id, AuthorFP: selfFP, Body: p.Body, Votes: make(map[string]int)})
		e.feedMu.Unlock()
		e.bus.Dispatch(eventbus.Event{Kind: eventbus.FeedUpdated, Fingerprint: selfFP})
		complete(t, dnaerr.OK, id)

	case TaskAddFeedComment:
		p := t.Params.(FeedCommentParams)
		post := e.findFeedPost(p.PostID)
		if post == nil {
			complete(t, dnaerr.NotFound, nil)
			return
		}
		e.feedMu.Lock()
		post.Comments = append(post.Comments, &localFeedComment{ID: itoa(uint64(len(post.Comments) + 1)), AuthorFP: selfFP, Body: p.Body, Votes: make(map[string]int)})
		e.feedMu.Unlock()
		e.bus.Dispatch(eventbus.Event{Kind: eventbus.FeedUpdated, Fingerprint: selfFP})
		complete(t, dnaerr.OK, nil)

	case TaskCastFeedVote:
		p := t.Params.(FeedVoteParams)
		post := e.findFeedPost(p.PostID)
		if post == nil {
			complete(t, dnaerr.NotFound, nil)
			return
		}
		e.feedMu.Lock()
		post.Votes[selfFP] = voteValue(p.Up)
		e.feedMu.Unlock()
		complete(t, dnaerr.OK, nil)

	case TaskGetFeedVotes:
		p := t.Params.(FeedCommentParams)
		post := e.findFeedPost(p.PostID)
		if post == nil {
			complete(t, dnaerr.NotFound, nil)
			return
		}
		e.feedMu.Lock()
		score := sumVotes(post.Votes)
		e.feedMu.Unlock()
		complete(t, dnaerr.OK, score)

	case TaskCastCommentVote:
		p := t.Params.(CommentVoteParams)
		comment := e.findFeedComment(p.PostID, p.CommentID)
		if comment == nil {
			complete(t, dnaerr.NotFound, nil)
			return
		}
		e.feedMu.Lock()
		comment.Votes[selfFP] = voteValue(p.Up)
		e.feedMu.Unlock()
		complete(t, dnaerr.OK, nil)

	case TaskGetCommentVotes:
		p := t.Params.(CommentVoteParams)
		comment := e.findFeedComment(p.PostID, p.CommentID)
		if comment == nil {
			complete(t, dnaerr.NotFound, nil)
			return
		}
		e.feedMu.Lock()
		score := sumVotes(comment.Votes)
		e.feedMu.Unlock()
		complete(t, dnaerr.OK, score)
	}
}

func (e *Engine) findFeedPost(postID string) *localFeedPost {
	e.feedMu.Lock()
	defer e.feedMu.Unlock()
	for i := range e.feedPosts {
		if e.feedPosts[i].ID == postID {
			return &e.feedPosts[i]
		}
	}
	return nil
}

func (e *Engine) findFeedComment(postID, commentID string) *localFeedComment {
	post := e.findFeedPost(postID)
	if post == nil {
		return nil
	}
	e.feedMu.Lock()
	defer e.feedMu.Unlock()
	for _, c := range post.Comments {
		if c.ID == commentID {
			return c
		}
	}
	return nil
}

func voteValue(up bool) int {
	if up {
		return 1
	}
	return -1
}

func sumVotes(votes map[string]int) int {
	total := 0
	for _, v := range votes {
		total += v
	}
	return total
}

func itoa(n uint64) string {
	if n == 0 {
		return "0"
	}
	var buf [20]byte
	i := len(buf)
	for n > 0 {
		i--
		buf[i] = byte('0' + n%10)
		n /= 10
	}
	return string(buf[i:])
}
