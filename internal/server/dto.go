package server

import "kitchenflow/internal/domain"

type LoginRequest struct {
	Email    string `json:"email" format:"email"`
	Password string `json:"password"`
}

type LoginResponse struct {
	Token string         `json:"token"`
	User  domain.Profile `json:"user"`
}

type RegisterUserRequest struct {
	Email    string `json:"email" format:"email"`
	FullName string `json:"full_name,omitempty"`
	Password string `json:"password"`
	Role     string `json:"role" enum:"owner,manager,designer,sales,factory,installer,worker,client"`
}

type CreateClientRequest struct {
	Name     string `json:"name"`
	Email    string `json:"email" format:"email"`
	Phone    string `json:"phone,omitempty"`
	Address  string `json:"address,omitempty"`
	Password string `json:"password,omitempty"`
}

type CreateProjectRequest struct {
	ClientID        string   `json:"client_id"`
	KitchenShape    string   `json:"kitchen_shape" enum:"L-shape,U-shape,Parallel,Island,Straight"`
	BudgetBracket   string   `json:"budget_bracket" enum:"3-5 lakhs,5-8 lakhs,8-10+ lakhs"`
	Materials       []string `json:"materials,omitempty"`
	ReferenceImages []string `json:"reference_images,omitempty"`
	ExistingImages  []string `json:"existing_kitchen_images,omitempty"`
	IntakePDFURL    string   `json:"intake_pdf_url,omitempty"`
}

type UpdateProjectRequest struct {
	Status            string `json:"status,omitempty"`
	CurrentPhase      *int   `json:"current_phase,omitempty"`
	ExpectedUpdatedAt string `json:"expected_updated_at,omitempty" format:"date-time"`
}

type AssignRequest struct {
	AssigneeID        string `json:"assignee_id"`
	Notes             string `json:"notes,omitempty"`
	ExpectedUpdatedAt string `json:"expected_updated_at,omitempty" format:"date-time"`
}

type SetStatusRequest struct {
	Status            string `json:"status"`
	ExpectedUpdatedAt string `json:"expected_updated_at,omitempty" format:"date-time"`
}

type SetIndividualStatusRequest struct {
	Status            string   `json:"status"`
	Images            []string `json:"images,omitempty"`
	ExpectedUpdatedAt string   `json:"expected_updated_at,omitempty" format:"date-time"`
}

type CreateTaskRequest struct {
	TaskName    string `json:"task_name"`
	Description string `json:"description,omitempty"`
}

type CreateIndividualTaskRequest struct {
	Title      string   `json:"title"`
	Notes      string   `json:"notes,omitempty"`
	AssignedTo string   `json:"assigned_to,omitempty"`
	Images     []string `json:"images,omitempty"`
}

type TaskUpdateRequest struct {
	Message string   `json:"message"`
	Images  []string `json:"images,omitempty"`
}

type ChatMessageRequest struct {
	Message string `json:"message"`
}

type RegisterFileRequest struct {
	TaskID   string `json:"task_id,omitempty"`
	FileName string `json:"file_name"`
	FileType string `json:"file_type,omitempty"`
	FileSize int64  `json:"file_size,omitempty"`
	FileURL  string `json:"file_url" format:"uri"`
}

type AddTeamMemberRequest struct {
	UserID     string `json:"user_id"`
	Department string `json:"department,omitempty"`
	Phone      string `json:"phone,omitempty"`
	Status     string `json:"status,omitempty"`
}
