package identity

// Summaries reported by AdvanceAuthentication.
const (
	SummaryLoginSuccess       = "LoginSuccess"
	SummaryStartNextChallenge = "StartNextChallenge"
	SummaryOobPending         = "OobPending"
)

// Actions sent with AdvanceAuthentication.
const (
	actionAnswer   = "Answer"
	actionStartOOB = "StartOOB"
	actionPoll     = "Poll"
)

// Mechanism answer types.
const (
	answerTypeText         = "Text"
	answerTypeStartOob     = "StartOob"
	answerTypeStartTextOob = "StartTextOob"
)

// Mechanism is one way of answering a challenge (password, email code, push).
type Mechanism struct {
	MechanismID      string `json:"MechanismId"`
	Name             string `json:"Name"`
	AnswerType       string `json:"AnswerType"`
	PromptMechChosen string `json:"PromptMechChosen,omitempty"`
	PromptSelectMech string `json:"PromptSelectMech,omitempty"`
}

// Challenge groups the mechanisms that satisfy one authentication factor.
type Challenge struct {
	Mechanisms []Mechanism `json:"Mechanisms"`
}

type startAuthRequest struct {
	User                  string `json:"User"`
	Version               string `json:"Version"`
	PlatformTokenResponse bool   `json:"PlatformTokenResponse"`
}

type startAuthResult struct {
	SessionID  string      `json:"SessionId"`
	Challenges []Challenge `json:"Challenges"`
	Summary    string      `json:"Summary,omitempty"`
}

type startAuthResponse struct {
	Success bool            `json:"success"`
	Result  startAuthResult `json:"Result"`
	Message string          `json:"Message"`
}

type advanceAuthRequest struct {
	SessionID   string `json:"SessionId"`
	MechanismID string `json:"MechanismId"`
	Action      string `json:"Action"`
	Answer      string `json:"Answer,omitempty"`
}

type advanceAuthResult struct {
	Summary       string `json:"Summary"`
	Token         string `json:"Token,omitempty"`
	RefreshToken  string `json:"RefreshToken,omitempty"`
	TokenLifetime int    `json:"TokenLifetime,omitempty"`
	User          string `json:"User,omitempty"`
}

type advanceAuthResponse struct {
	Success bool              `json:"success"`
	Result  advanceAuthResult `json:"Result"`
	Message string            `json:"Message"`
}

func (r *advanceAuthResponse) summary() string {
	if r.Result.Summary == "" && !r.Success {
		return "Failure"
	}
	return r.Result.Summary
}
