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

package main

import (
	"encoding/json"

	"github.com/spf13/cobra"
)

var contactsCmd = &cobra.Command{
	Use:   "contacts",
	Short: "List contacts and manage contact requests",
}

var (
	contactRecipientFP string
	contactMessage     string
	contactSenderFP    string
)

var contactsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List the loaded identity's contacts",
	RunE:  runContactsList,
}

var contactsRequestSendCmd = &cobra.Command{
	Use:   "request-send",
	Short: "Send a contact request",
	RunE:  runContactRequestSend,
}

var contactsRequestApproveCmd = &cobra.Command{
	Use:   "request-approve",
	Short: "Approve a pending contact request",
	RunE:  runContactRequestApprove,
}

func init() {
	contactsRequestSendCmd.Flags().StringVar(&contactRecipientFP, "recipient", "", "recipient fingerprint")
	contactsRequestSendCmd.Flags().StringVar(&contactMessage, "message", "", "optional introduction message")
	_ = contactsRequestSendCmd.MarkFlagRequired("recipient")

	contactsRequestApproveCmd.Flags().StringVar(&contactSenderFP, "sender", "", "fingerprint of the pending request's sender")
	_ = contactsRequestApproveCmd.MarkFlagRequired("sender")

	contactsCmd.AddCommand(contactsListCmd, contactsRequestSendCmd, contactsRequestApproveCmd)
	rootCmd.AddCommand(contactsCmd)
}

func runContactsList(cmd *cobra.Command, args []string) error {
	result, err := newAPIClient().do("GET", "/api/v1/contacts", nil)
	if err != nil {
		return err
	}
	printResult(json.RawMessage(result))
	return nil
}

func runContactRequestSend(cmd *cobra.Command, args []string) error {
	result, err := newAPIClient().do("POST", "/api/v1/contacts/requests/send", map[string]string{
		"recipient_fp": contactRecipientFP,
		"message":      contactMessage,
	})
	if err != nil {
		return err
	}
	printResult(json.RawMessage(result))
	return nil
}

func runContactRequestApprove(cmd *cobra.Command, args []string) error {
	result, err := newAPIClient().do("POST", "/api/v1/contacts/requests/approve", map[string]string{
		"sender_fp": contactSenderFP,
	})
	if err != nil {
		return err
	}
	printResult(json.RawMessage(result))
	return nil
}
