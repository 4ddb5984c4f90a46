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
	"net/url"

	"github.com/spf13/cobra"
)

var messagesCmd = &cobra.Command{
	Use:   "messages",
	Short: "Send messages and view conversations",
}

var (
	messageRecipientFP string
	messageText        string
	messageContactFP   string
)

var messagesSendCmd = &cobra.Command{
	Use:   "send",
	Short: "Send a message to a contact",
	RunE:  runMessagesSend,
}

var messagesConversationCmd = &cobra.Command{
	Use:   "conversation",
	Short: "Fetch the stored conversation with a contact",
	RunE:  runMessagesConversation,
}

func init() {
	messagesSendCmd.Flags().StringVar(&messageRecipientFP, "recipient", "", "recipient fingerprint")
	messagesSendCmd.Flags().StringVar(&messageText, "text", "", "plaintext message body")
	_ = messagesSendCmd.MarkFlagRequired("recipient")
	_ = messagesSendCmd.MarkFlagRequired("text")

	messagesConversationCmd.Flags().StringVar(&messageContactFP, "contact", "", "contact fingerprint")
	_ = messagesConversationCmd.MarkFlagRequired("contact")

	messagesCmd.AddCommand(messagesSendCmd, messagesConversationCmd)
	rootCmd.AddCommand(messagesCmd)
}

func runMessagesSend(cmd *cobra.Command, args []string) error {
	result, err := newAPIClient().do("POST", "/api/v1/messages/send", map[string]interface{}{
		"recipient_fp": messageRecipientFP,
		"plaintext":    []byte(messageText),
	})
	if err != nil {
		return err
	}
	printResult(json.RawMessage(result))
	return nil
}

func runMessagesConversation(cmd *cobra.Command, args []string) error {
	path := "/api/v1/messages/conversation?" + url.Values{"contact_fp": {messageContactFP}}.Encode()
	result, err := newAPIClient().do("GET", path, nil)
	if err != nil {
		return err
	}
	printResult(json.RawMessage(result))
	return nil
}
