package crud

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	iam "github.com/chimerakang/portfolio-iam"
	"github.com/chimerakang/portfolio-iam/transport"
)

// Admin collection endpoints.
const (
	EndpointProjects    = "admin/projects"
	EndpointSkills      = "admin/skills"
	EndpointExperiences = "admin/experiences"
	EndpointEducations  = "admin/educations"
	EndpointAbout       = "admin/about"
	EndpointContacts    = "admin/contacts"
	EndpointTestimonial = "admin/testimonials"
	EndpointSocialLinks = "admin/sociallinks"
	EndpointSettings    = "admin/settings"
	EndpointServices    = "admin/services"
	EndpointAdminUsers  = "admin-users"
	EndpointAdminRoles  = "admin-roles"
	EndpointInvitations = "admin-invitations"
	EndpointAnalytics   = "analytics"
)

// Project is a portfolio project.
type Project struct {
	ID          int64      `json:"id,omitempty"`
	Title       string     `json:"title" validate:"required,max=200"`
	Description string     `json:"description" validate:"required,max=1000"`
	Image       string     `json:"image,omitempty"`
	URL         string     `json:"url,omitempty" validate:"omitempty,url,min=5,max=500"`
	Tags        []string   `json:"tags,omitempty" validate:"max=10,dive,max=50"`
	CreatedAt   *time.Time `json:"created_at,omitempty"`
	UpdatedAt   *time.Time `json:"updated_at,omitempty"`
}

// Skill is a named proficiency from 0 to 100.
type Skill struct {
	ID          int64  `json:"id,omitempty"`
	Name        string `json:"name" validate:"required,max=100"`
	Proficiency int    `json:"proficiency" validate:"min=0,max=100"`
}

// Experience is a job history entry. Dates are YYYY-MM-DD.
type Experience struct {
	ID          int64  `json:"id,omitempty"`
	JobTitle    string `json:"job_title" validate:"required,max=100"`
	Company     string `json:"company" validate:"required,max=100"`
	CompanyLogo string `json:"company_logo,omitempty"`
	StartDate   string `json:"start_date" validate:"required,datetime=2006-01-02"`
	EndDate     string `json:"end_date,omitempty" validate:"omitempty,datetime=2006-01-02"`
	Description string `json:"description" validate:"required,max=1000"`
}

// Education is a degree or certification entry.
type Education struct {
	ID          int64  `json:"id,omitempty"`
	Degree      string `json:"degree" validate:"required,max=100"`
	Institution string `json:"institution" validate:"required,max=100"`
	StartDate   string `json:"start_date" validate:"required,datetime=2006-01-02"`
	EndDate     string `json:"end_date,omitempty" validate:"omitempty,datetime=2006-01-02"`
	URL         string `json:"url,omitempty" validate:"omitempty,url,min=5,max=500"`
	Certificate string `json:"certificate,omitempty"`
}

// About is the site owner's profile.
type About struct {
	ID             int64  `json:"id,omitempty"`
	FullName       string `json:"full_name" validate:"required,max=100"`
	FirstName      string `json:"first_name,omitempty" validate:"max=100"`
	LastName       string `json:"last_name,omitempty" validate:"max=100"`
	Title          string `json:"title" validate:"required,max=200"`
	ProfilePicture string `json:"profile_picture,omitempty"`
	Summary        string `json:"summary" validate:"required,max=2000"`
	Email          string `json:"email" validate:"required,email,min=5,max=254"`
	PhoneNumber    string `json:"phone_number,omitempty" validate:"omitempty,min=7,max=20"`
	Address        string `json:"address,omitempty" validate:"max=200"`
	Resume         string `json:"resume,omitempty"`
}

// Contact is a message left through the public contact form.
type Contact struct {
	ID        int64      `json:"id,omitempty"`
	Name      string     `json:"name" validate:"required,max=100"`
	Email     string     `json:"email" validate:"required,email,min=5,max=254"`
	Message   string     `json:"message" validate:"required,max=2000"`
	CreatedAt *time.Time `json:"created_at,omitempty"`
}

// Testimonial is a rated recommendation.
type Testimonial struct {
	ID       int64  `json:"id,omitempty"`
	Name     string `json:"name" validate:"required,max=100"`
	Feedback string `json:"feedback" validate:"required,max=2000"`
	Company  string `json:"company,omitempty" validate:"max=100"`
	Position string `json:"position,omitempty" validate:"max=100"`
	Rating   int    `json:"rating" validate:"min=1,max=5"`
	Image    string `json:"image,omitempty"`
}

// SocialLink is a profile link shown in the site footer.
type SocialLink struct {
	ID       int64  `json:"id,omitempty"`
	Platform string `json:"platform" validate:"required,max=50"`
	Icon     string `json:"icon,omitempty"`
	URL      string `json:"url" validate:"required,url,min=5,max=500"`
}

// Setting holds site-wide presentation and contact values.
type Setting struct {
	ID              int64      `json:"id,omitempty"`
	SiteName        string     `json:"site_name" validate:"required,max=100"`
	SiteLogo        string     `json:"site_logo,omitempty"`
	SiteFavicon     string     `json:"site_favicon,omitempty"`
	SiteDescription string     `json:"site_description" validate:"max=1000"`
	SiteKeywords    string     `json:"site_keywords" validate:"max=500"`
	SiteAuthor      string     `json:"site_author" validate:"max=100"`
	SiteEmail       string     `json:"site_email" validate:"omitempty,email,max=254"`
	SitePhone       string     `json:"site_phone" validate:"omitempty,min=7,max=20"`
	SiteAddress     string     `json:"site_address" validate:"max=200"`
	SiteCity        string     `json:"site_city" validate:"max=100"`
	SiteState       string     `json:"site_state" validate:"max=100"`
	SiteZip         string     `json:"site_zip" validate:"max=20"`
	SiteCountry     string     `json:"site_country" validate:"max=100"`
	SiteCopyright   string     `json:"site_copyright" validate:"max=100"`
	SiteGithub      string     `json:"site_github,omitempty" validate:"omitempty,url,max=200"`
	SiteLinkedin    string     `json:"site_linkedin,omitempty" validate:"omitempty,url,max=200"`
	SiteTwitter     string     `json:"site_twitter,omitempty" validate:"omitempty,url,max=200"`
	SiteInstagram   string     `json:"site_instagram,omitempty" validate:"omitempty,url,max=200"`
	SiteFacebook    string     `json:"site_facebook,omitempty" validate:"omitempty,url,max=200"`
	SiteYoutube     string     `json:"site_youtube,omitempty" validate:"omitempty,url,max=200"`
	SiteTiktok      string     `json:"site_tiktok,omitempty" validate:"omitempty,url,max=200"`
	SitePinterest   string     `json:"site_pinterest,omitempty" validate:"omitempty,url,max=200"`
	SiteReddit      string     `json:"site_reddit,omitempty" validate:"omitempty,url,max=200"`
	CreatedAt       *time.Time `json:"created_at,omitempty"`
	UpdatedAt       *time.Time `json:"updated_at,omitempty"`
}

// Service is an offering listed on the site.
type Service struct {
	ID          int64  `json:"id,omitempty"`
	Name        string `json:"name" validate:"required,max=100"`
	Description string `json:"description" validate:"required,max=1000"`
	Icon        string `json:"icon,omitempty"`
}

// Invitation statuses.
const (
	InvitationPending   = "pending"
	InvitationAccepted  = "accepted"
	InvitationExpired   = "expired"
	InvitationCancelled = "cancelled"
)

// AdminInvitation invites an email address to join with a role.
// Only Email and RoleID are sent on create.
type AdminInvitation struct {
	ID         int64      `json:"id,omitempty"`
	InviteCode string     `json:"invite_code,omitempty"`
	Email      string     `json:"email" validate:"required,email,min=5,max=254"`
	Role       *iam.Role  `json:"role,omitempty"`
	RoleID     int64      `json:"role_id,omitempty" validate:"required,gt=0"`
	InvitedBy  string     `json:"invited_by,omitempty"`
	Status     string     `json:"status,omitempty" validate:"omitempty,oneof=pending accepted expired cancelled"`
	ExpiresAt  *time.Time `json:"expires_at,omitempty"`
	AcceptedAt *time.Time `json:"accepted_at,omitempty"`
	CreatedAt  *time.Time `json:"created_at,omitempty"`
	UpdatedAt  *time.Time `json:"updated_at,omitempty"`
}

// DashboardStats is the analytics summary shown on the dashboard.
type DashboardStats struct {
	Overview struct {
		TotalProjects     int `json:"total_projects"`
		TotalSkills       int `json:"total_skills"`
		TotalExperiences  int `json:"total_experiences"`
		TotalContacts     int `json:"total_contacts"`
		TotalTestimonials int `json:"total_testimonials"`
	} `json:"overview"`
	RecentActivity struct {
		RecentContacts int `json:"recent_contacts"`
		RecentProjects int `json:"recent_projects"`
	} `json:"recent_activity"`
	Growth struct {
		ContactsGrowth string `json:"contacts_growth"`
		ProjectsGrowth string `json:"projects_growth"`
	} `json:"growth"`
}

// Collection binds the generic operations to one endpoint and item type.
// Create and Update validate the item before sending it.
type Collection[T any] struct {
	client   *Client
	endpoint string
}

// NewCollection returns a Collection for endpoint.
func NewCollection[T any](c *Client, endpoint string) *Collection[T] {
	return &Collection[T]{client: c, endpoint: endpoint}
}

// Endpoint returns the collection's endpoint.
func (c *Collection[T]) Endpoint() string { return c.endpoint }

func (c *Collection[T]) List(ctx context.Context) ([]T, error) {
	return List[T](ctx, c.client, c.endpoint)
}

func (c *Collection[T]) Get(ctx context.Context, id int64) (*T, error) {
	return Get[T](ctx, c.client, c.endpoint, id)
}

func (c *Collection[T]) Create(ctx context.Context, item *T) (*T, error) {
	if err := c.check(item); err != nil {
		return nil, err
	}
	return Create[T](ctx, c.client, c.endpoint, item)
}

func (c *Collection[T]) Update(ctx context.Context, id int64, item *T) (*T, error) {
	if err := c.check(item); err != nil {
		return nil, err
	}
	return Update[T](ctx, c.client, c.endpoint, id, item)
}

// Patch sends only the given fields. They are not validated locally.
func (c *Collection[T]) Patch(ctx context.Context, id int64, fields map[string]any) (*T, error) {
	return Patch[T](ctx, c.client, c.endpoint, id, fields)
}

func (c *Collection[T]) Delete(ctx context.Context, id int64) error {
	return Delete(ctx, c.client, c.endpoint, id)
}

func (c *Collection[T]) CreateWithForm(ctx context.Context, form *transport.Form) (*T, error) {
	return CreateWithForm[T](ctx, c.client, c.endpoint, form)
}

func (c *Collection[T]) UpdateWithForm(ctx context.Context, id int64, form *transport.Form) (*T, error) {
	return UpdateWithForm[T](ctx, c.client, c.endpoint, id, form)
}

func (c *Collection[T]) Upload(ctx context.Context, file io.Reader, filename string, extra map[string]string) (*UploadResult, error) {
	return Upload(ctx, c.client, c.endpoint, file, filename, extra)
}

func (c *Collection[T]) check(item *T) error {
	if item == nil {
		return fmt.Errorf("iam/crud: %s: item is nil", c.endpoint)
	}
	if err := c.client.Validate(item); err != nil {
		return fmt.Errorf("iam/crud: invalid %s: %w", c.endpoint, err)
	}
	return nil
}

// ReadOnlyCollection exposes only List and Get.
type ReadOnlyCollection[T any] struct {
	c *Collection[T]
}

func (r *ReadOnlyCollection[T]) List(ctx context.Context) ([]T, error) { return r.c.List(ctx) }

func (r *ReadOnlyCollection[T]) Get(ctx context.Context, id int64) (*T, error) {
	return r.c.Get(ctx, id)
}

// InboxCollection exposes List, Get and Delete. Items arrive from outside the
// admin surface and are never edited.
type InboxCollection[T any] struct {
	c *Collection[T]
}

func (r *InboxCollection[T]) List(ctx context.Context) ([]T, error) { return r.c.List(ctx) }

func (r *InboxCollection[T]) Get(ctx context.Context, id int64) (*T, error) {
	return r.c.Get(ctx, id)
}

func (r *InboxCollection[T]) Delete(ctx context.Context, id int64) error {
	return r.c.Delete(ctx, id)
}

// Admin groups every typed admin collection.
type Admin struct {
	client *Client

	Projects     *Collection[Project]
	Skills       *Collection[Skill]
	Experiences  *Collection[Experience]
	Educations   *Collection[Education]
	About        *Collection[About]
	Contacts     *InboxCollection[Contact]
	Testimonials *Collection[Testimonial]
	SocialLinks  *Collection[SocialLink]
	Settings     *Collection[Setting]
	Services     *Collection[Service]
	AdminUsers   *Collection[iam.AdminUser]
	AdminRoles   *ReadOnlyCollection[iam.Role]
	Invitations  *Collection[AdminInvitation]
}

// NewAdmin binds every admin collection to c.
func NewAdmin(c *Client) *Admin {
	return &Admin{
		client:       c,
		Projects:     NewCollection[Project](c, EndpointProjects),
		Skills:       NewCollection[Skill](c, EndpointSkills),
		Experiences:  NewCollection[Experience](c, EndpointExperiences),
		Educations:   NewCollection[Education](c, EndpointEducations),
		About:        NewCollection[About](c, EndpointAbout),
		Contacts:     &InboxCollection[Contact]{c: NewCollection[Contact](c, EndpointContacts)},
		Testimonials: NewCollection[Testimonial](c, EndpointTestimonial),
		SocialLinks:  NewCollection[SocialLink](c, EndpointSocialLinks),
		Settings:     NewCollection[Setting](c, EndpointSettings),
		Services:     NewCollection[Service](c, EndpointServices),
		AdminUsers:   NewCollection[iam.AdminUser](c, EndpointAdminUsers),
		AdminRoles:   &ReadOnlyCollection[iam.Role]{c: NewCollection[iam.Role](c, EndpointAdminRoles)},
		Invitations:  NewCollection[AdminInvitation](c, EndpointInvitations),
	}
}

// Analytics fetches the dashboard summary. The endpoint has no trailing slash.
func (a *Admin) Analytics(ctx context.Context) (*DashboardStats, error) {
	data, err := a.client.do(ctx, call{
		op:       "get",
		endpoint: EndpointAnalytics,
		path:     EndpointAnalytics,
		method:   http.MethodGet,
		failMsg:  "Failed to fetch analytics data",
	})
	if err != nil {
		return nil, err
	}
	return decodeOne[DashboardStats](EndpointAnalytics, data)
}
