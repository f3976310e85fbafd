package models

import "time"

type Repository struct {
	ID            string    `json:"id"`
	URL           string    `json:"url"`
	Name          string    `json:"name"`
	DefaultBranch string    `json:"defaultBranch"`
	LastScanned   time.Time `json:"lastScanned"`
	Status        string    `json:"status"` // pending, scanning, ready, error
	FilesCount    int       `json:"filesCount"`
	IssuesCount   int       `json:"issuesCount"`
}

type CreateRepositoryInput struct {
	URL           string `json:"url" validate:"required,url"`
	DefaultBranch string `json:"defaultBranch"`
}
