package domain

type Client struct {
	ID         string `json:"id"`
	ClientCode string `json:"client_code"`
	Name       string `json:"name"`
	Email      string `json:"email"`
	Phone      string `json:"phone"`
	Address    string `json:"address"`
	CreatedAt  string `json:"created_at" format:"date-time"`
	UpdatedAt  string `json:"updated_at" format:"date-time"`
}

type Project struct {
	ID               string   `json:"id"`
	ProjectReference string   `json:"project_reference"`
	ClientID         string   `json:"client_id"`
	KitchenShape     string   `json:"kitchen_shape" enum:"L-shape,U-shape,Parallel,Island,Straight"`
	BudgetBracket    string   `json:"budget_bracket" enum:"3-5 lakhs,5-8 lakhs,8-10+ lakhs"`
	Materials        []string `json:"materials"`
	Status           string   `json:"status" enum:"intake,design,confirmation,production_prep,factory,installation,closure"`
	CurrentPhase     int      `json:"current_phase"`
	ReferenceImages  []string `json:"reference_images,omitempty"`
	ExistingImages   []string `json:"existing_kitchen_images,omitempty"`
	IntakePDFURL     *string  `json:"intake_pdf_url,omitempty"`
	CreatedAt        string   `json:"created_at" format:"date-time"`
	UpdatedAt        string   `json:"updated_at" format:"date-time"`
}

type Phase struct {
	ID          string  `json:"id"`
	ProjectID   string  `json:"project_id"`
	PhaseNumber int     `json:"phase_number"`
	PhaseName   string  `json:"phase_name" enum:"design_quotation,confirmation_payment,production_prep,factory_production,site_installation,closure_feedback"`
	Status      string  `json:"status" enum:"todo,in_progress,done"`
	AssignedTo  *string `json:"assigned_to,omitempty"`
	AssignedBy  *string `json:"assigned_by,omitempty"`
	AssignedAt  *string `json:"assigned_at,omitempty" format:"date-time"`
	StartedAt   *string `json:"started_at,omitempty" format:"date-time"`
	CompletedAt *string `json:"completed_at,omitempty" format:"date-time"`
	CreatedAt   string  `json:"created_at" format:"date-time"`
	UpdatedAt   string  `json:"updated_at" format:"date-time"`
}

type Task struct {
	ID          string  `json:"id"`
	ProjectID   string  `json:"project_id"`
	TaskName    string  `json:"task_name"`
	Description string  `json:"description,omitempty"`
	Status      string  `json:"status" enum:"todo,in_progress,done"`
	AssignedTo  *string `json:"assigned_to,omitempty"`
	AssignedBy  *string `json:"assigned_by,omitempty"`
	AssignedAt  *string `json:"assigned_at,omitempty" format:"date-time"`
	CompletedAt *string `json:"completed_at,omitempty" format:"date-time"`
	CreatedAt   string  `json:"created_at" format:"date-time"`
	UpdatedAt   string  `json:"updated_at" format:"date-time"`
}

type IndividualTask struct {
	ID          string   `json:"id"`
	PhaseID     string   `json:"phase_id"`
	Title       string   `json:"title"`
	Notes       string   `json:"notes,omitempty"`
	Status      string   `json:"status" enum:"todo,started,in_progress,completed"`
	AssignedTo  string   `json:"assigned_to"`
	CreatedBy   string   `json:"created_by"`
	Images      []string `json:"images,omitempty"`
	CompletedAt *string  `json:"completed_at,omitempty" format:"date-time"`
	CreatedAt   string   `json:"created_at" format:"date-time"`
	UpdatedAt   string   `json:"updated_at" format:"date-time"`
}

// AssignmentRecord is append-only; after a re-assignment the latest record
// can disagree with the phase's current assignee, which is authoritative.
type AssignmentRecord struct {
	ID         string `json:"id"`
	ProjectID  string `json:"project_id"`
	PhaseID    string `json:"phase_id,omitempty"`
	TaskID     string `json:"task_id,omitempty"`
	AssignedTo string `json:"assigned_to"`
	AssignedBy string `json:"assigned_by"`
	AssignedAt string `json:"assigned_at" format:"date-time"`
	Notes      string `json:"notes,omitempty"`
	CreatedAt  string `json:"created_at" format:"date-time"`
}

type Notification struct {
	ID        string  `json:"id"`
	UserID    string  `json:"user_id"`
	Title     string  `json:"title"`
	Message   string  `json:"message"`
	Type      string  `json:"type,omitempty"`
	ProjectID *string `json:"project_id,omitempty"`
	TaskID    *string `json:"task_id,omitempty"`
	Read      bool    `json:"read"`
	CreatedAt string  `json:"created_at" format:"date-time"`
}

type ChatMessage struct {
	ID         string `json:"id"`
	ProjectID  string `json:"project_id"`
	SenderID   string `json:"sender_id"`
	SenderName string `json:"sender_name,omitempty"`
	Message    string `json:"message"`
	CreatedAt  string `json:"created_at" format:"date-time"`
}

type TaskUpdate struct {
	ID        string   `json:"id"`
	TaskID    *string  `json:"task_id,omitempty"`
	UserID    string   `json:"user_id"`
	Message   string   `json:"message"`
	Images    []string `json:"images,omitempty"`
	CreatedAt string   `json:"created_at" format:"date-time"`
}

type Profile struct {
	ID        string  `json:"id"`
	Email     string  `json:"email"`
	FullName  string  `json:"full_name,omitempty"`
	Role      string  `json:"role" enum:"owner,manager,designer,sales,factory,installer,worker,client"`
	AvatarURL *string `json:"avatar_url,omitempty"`
	CreatedAt string  `json:"created_at" format:"date-time"`
	UpdatedAt string  `json:"updated_at" format:"date-time"`
}

type TeamMember struct {
	ID         string `json:"id"`
	UserID     string `json:"user_id"`
	Department string `json:"department,omitempty"`
	Phone      string `json:"phone,omitempty"`
	Status     string `json:"status"`
	AddedBy    string `json:"added_by,omitempty"`
	CreatedAt  string `json:"created_at" format:"date-time"`
	UpdatedAt  string `json:"updated_at" format:"date-time"`
}

type ProjectFile struct {
	ID         string  `json:"id"`
	ProjectID  string  `json:"project_id"`
	TaskID     *string `json:"task_id,omitempty"`
	FileName   string  `json:"file_name"`
	FileType   string  `json:"file_type"`
	FileSize   *int64  `json:"file_size,omitempty"`
	FileURL    string  `json:"file_url"`
	UploadedBy string  `json:"uploaded_by"`
	CreatedAt  string  `json:"created_at" format:"date-time"`
}

type Event struct {
	ID         int64  `json:"id"`
	TS         string `json:"ts" format:"date-time"`
	Type       string `json:"type"`
	ProjectID  string `json:"project_id,omitempty"`
	EntityKind string `json:"entity_kind"`
	EntityID   string `json:"entity_id,omitempty"`
	ActorID    string `json:"actor_id"`
	Payload    string `json:"payload_json"`
}
