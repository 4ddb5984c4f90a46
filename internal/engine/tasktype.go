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

// Package engine implements C10 plus the Engine singleton state and public
// API (spec §3 Engine State, §4.10, §6). It wires every other internal
// package (C1-C9, C11) behind one process-wide handle.
package engine

// TaskType is the closed task-type discriminator dispatched by the worker
// pool handler (spec §4.10's "closed task-type set").
type TaskType int

const (
	TaskListIdentities TaskType = iota
	TaskCreateIdentity
	TaskLoadIdentity
	TaskDeleteIdentity
	TaskRegisterName
	TaskGetDisplayName
	TaskGetAvatar
	TaskLookupName
	TaskGetProfile
	TaskLookupProfile
	TaskUpdateProfile
	TaskGetContacts
	TaskAddContact
	TaskRemoveContact
	TaskSendContactRequest
	TaskGetContactRequests
	TaskApproveContactRequest
	TaskDenyContactRequest
	TaskBlockUser
	TaskUnblockUser
	TaskGetBlockedUsers
	TaskSendMessage
	TaskGetConversation
	TaskCheckOfflineMessages
	TaskGetGroups
	TaskCreateGroup
	TaskSendGroupMessage
	TaskGetInvitations
	TaskAcceptInvitation
	TaskRejectInvitation
	TaskListWallets
	TaskGetBalances
	TaskSendTokens
	TaskGetTransactions
	TaskRefreshPresence
	TaskLookupPresence
	TaskSyncContactsToDht
	TaskSyncContactsFromDht
	TaskSyncGroups
	TaskGetRegisteredName
	TaskGetFeedPosts
	TaskCreateFeedPost
	TaskAddFeedComment
	TaskCastFeedVote
	TaskGetFeedVotes
	TaskCastCommentVote
	TaskGetCommentVotes
)

func (t TaskType) String() string {
	switch t {
	case TaskListIdentities:
		return "LIST_IDENTITIES"
	case TaskCreateIdentity:
		return "CREATE_IDENTITY"
	case TaskLoadIdentity:
		return "LOAD_IDENTITY"
	case TaskDeleteIdentity:
		return "DELETE_IDENTITY"
	case TaskRegisterName:
		return "REGISTER_NAME"
	case TaskGetDisplayName:
		return "GET_DISPLAY_NAME"
	case TaskGetAvatar:
		return "GET_AVATAR"
	case TaskLookupName:
		return "LOOKUP_NAME"
	case TaskGetProfile:
		return "GET_PROFILE"
	case TaskLookupProfile:
		return "LOOKUP_PROFILE"
	case TaskUpdateProfile:
		return "UPDATE_PROFILE"
	case TaskGetContacts:
		return "GET_CONTACTS"
	case TaskAddContact:
		return "ADD_CONTACT"
	case TaskRemoveContact:
		return "REMOVE_CONTACT"
	case TaskSendContactRequest:
		return "SEND_CONTACT_REQUEST"
	case TaskGetContactRequests:
		return "GET_CONTACT_REQUESTS"
	case TaskApproveContactRequest:
		return "APPROVE_CONTACT_REQUEST"
	case TaskDenyContactRequest:
		return "DENY_CONTACT_REQUEST"
	case TaskBlockUser:
		return "BLOCK_USER"
	case TaskUnblockUser:
		return "UNBLOCK_USER"
	case TaskGetBlockedUsers:
		return "GET_BLOCKED_USERS"
	case TaskSendMessage:
		return "SEND_MESSAGE"
	case TaskGetConversation:
		return "GET_CONVERSATION"
	case TaskCheckOfflineMessages:
		return "CHECK_OFFLINE_MESSAGES"
	case TaskGetGroups:
		return "GET_GROUPS"
	case TaskCreateGroup:
		return "CREATE_GROUP"
	case TaskSendGroupMessage:
		return "SEND_GROUP_MESSAGE"
	case TaskGetInvitations:
		return "GET_INVITATIONS"
	case TaskAcceptInvitation:
		return "ACCEPT_INVITATION"
	case TaskRejectInvitation:
		return "REJECT_INVITATION"
	case TaskListWallets:
		return "LIST_WALLETS"
	case TaskGetBalances:
		return "GET_BALANCES"
	case TaskSendTokens:
		return "SEND_TOKENS"
	case TaskGetTransactions:
		return "GET_TRANSACTIONS"
	case TaskRefreshPresence:
		return "REFRESH_PRESENCE"
	case TaskLookupPresence:
		return "LOOKUP_PRESENCE"
	case TaskSyncContactsToDht:
		return "SYNC_CONTACTS_TO_DHT"
	case TaskSyncContactsFromDht:
		return "SYNC_CONTACTS_FROM_DHT"
	case TaskSyncGroups:
		return "SYNC_GROUPS"
	case TaskGetRegisteredName:
		return "GET_REGISTERED_NAME"
	case TaskGetFeedPosts:
		return "GET_FEED_POSTS"
	case TaskCreateFeedPost:
		return "CREATE_FEED_POST"
	case TaskAddFeedComment:
		return "ADD_FEED_COMMENT"
	case TaskCastFeedVote:
		return "CAST_FEED_VOTE"
	case TaskGetFeedVotes:
		return "GET_FEED_VOTES"
	case TaskCastCommentVote:
		return "CAST_COMMENT_VOTE"
	case TaskGetCommentVotes:
		return "GET_COMMENT_VOTES"
	default:
		return "UNKNOWN"
	}
}
