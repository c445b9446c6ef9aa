package masto

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/url"
	"strings"

	"github.com/mattn/go-mastodon"

	"github.com/mastobridge/mastobridge/internal/biz/domain"
	"github.com/mastobridge/mastobridge/internal/biz/repo"
)

const (
	appName     = "Chat Bridge"
	appWebsite  = "https://github.com/mastobridge/mastobridge"
	oobRedirect = "urn:ietf:wg:oauth:2.0:oob"
	scopes      = "read write follow"

	pageLimit = 100
)

// Client implements the microblog repository on top of the Mastodon API
type Client struct{}

// NewClient creates a new Mastodon adapter
func NewClient() *Client {
	return &Client{}
}

var _ repo.MicroblogRepo = (*Client)(nil)

func apiClient(instanceURL, token string, creds domain.AppCreds) *mastodon.Client {
	return mastodon.NewClient(&mastodon.Config{
		Server:       instanceURL,
		ClientID:     creds.ClientID,
		ClientSecret: creds.ClientSecret,
		AccessToken:  token,
	})
}

func sessionClient(s *domain.Session) *mastodon.Client {
	return apiClient(s.InstanceURL, s.Token, domain.AppCreds{})
}

// RegisterApp registers an OAuth application on the instance
func (c *Client) RegisterApp(ctx context.Context, instanceURL string) (domain.AppCreds, string, error) {
	app, err := mastodon.RegisterApp(ctx, &mastodon.AppConfig{
		Server:       instanceURL,
		ClientName:   appName,
		Website:      appWebsite,
		RedirectURIs: oobRedirect,
		Scopes:       scopes,
	})
	if err != nil {
		return domain.AppCreds{}, "", fmt.Errorf("%w: %v", domain.ErrInvalidInstance, err)
	}
	creds := domain.AppCreds{ClientID: app.ClientID, ClientSecret: app.ClientSecret}
	authURL := app.AuthURI
	if authURL == "" {
		authURL = c.AuthorizationURL(instanceURL, creds)
	}
	return creds, authURL, nil
}

// AuthorizationURL rebuilds the authorization URL for registered app creds
func (c *Client) AuthorizationURL(instanceURL string, creds domain.AppCreds) string {
	q := url.Values{}
	q.Set("client_id", creds.ClientID)
	q.Set("redirect_uri", oobRedirect)
	q.Set("response_type", "code")
	q.Set("scope", scopes)
	return strings.TrimRight(instanceURL, "/") + "/oauth/authorize?" + q.Encode()
}

// ExchangeCode trades an authorization code for an access token
func (c *Client) ExchangeCode(ctx context.Context, instanceURL string, creds domain.AppCreds, code string) (string, error) {
	cli := apiClient(instanceURL, "", creds)
	if err := cli.AuthenticateToken(ctx, code, oobRedirect); err != nil {
		if isTransient(err) {
			return "", classify(err)
		}
		return "", fmt.Errorf("%w: %v", domain.ErrInvalidCode, err)
	}
	return cli.Config.AccessToken, nil
}

// PasswordLogin performs the direct credential exchange
func (c *Client) PasswordLogin(ctx context.Context, instanceURL, user, password string) (string, error) {
	app, err := mastodon.RegisterApp(ctx, &mastodon.AppConfig{
		Server:       instanceURL,
		ClientName:   appName,
		Website:      appWebsite,
		RedirectURIs: oobRedirect,
		Scopes:       scopes,
	})
	if err != nil {
		return "", fmt.Errorf("%w: %v", domain.ErrInvalidInstance, err)
	}
	cli := apiClient(instanceURL, "", domain.AppCreds{ClientID: app.ClientID, ClientSecret: app.ClientSecret})
	if err := cli.Authenticate(ctx, user, password); err != nil {
		if isTransient(err) {
			return "", classify(err)
		}
		return "", fmt.Errorf("%w: %v", domain.ErrAuth, err)
	}
	return cli.Config.AccessToken, nil
}

// VerifyCredentials resolves the account behind a token
func (c *Client) VerifyCredentials(ctx context.Context, instanceURL, token string) (*domain.Author, error) {
	cli := apiClient(instanceURL, token, domain.AppCreds{})
	acc, err := cli.GetAccountCurrentUser(ctx)
	if err != nil {
		return nil, classify(err)
	}
	return toAuthor(acc), nil
}

// PostStatus publishes a status
func (c *Client) PostStatus(ctx context.Context, s *domain.Session, text string, visibility domain.Visibility, inReplyTo string) error {
	toot := &mastodon.Toot{
		Status:      text,
		Visibility:  string(visibility),
		InReplyToID: mastodon.ID(inReplyTo),
	}
	if _, err := sessionClient(s).PostStatus(ctx, toot); err != nil {
		return classify(err)
	}
	return nil
}

// SendDirectMessage posts a direct-visibility status addressed to handle
func (c *Client) SendDirectMessage(ctx context.Context, s *domain.Session, handle, text string) error {
	body := "@" + domain.NormalizeHandle(handle) + " " + text
	return c.PostStatus(ctx, s, body, domain.VisibilityDirect, "")
}

// FetchHome returns home timeline posts strictly after sinceID, oldest first
func (c *Client) FetchHome(ctx context.Context, s *domain.Session, sinceID string) ([]*domain.Post, error) {
	pg := &mastodon.Pagination{Limit: pageLimit}
	if sinceID != "" {
		pg.MinID = mastodon.ID(sinceID)
	}
	statuses, err := sessionClient(s).GetTimelineHome(ctx, pg)
	if err != nil {
		return nil, classify(err)
	}
	posts := make([]*domain.Post, 0, len(statuses))
	for i := len(statuses) - 1; i >= 0; i-- { // the API returns newest first
		posts = append(posts, toPost(statuses[i]))
	}
	return posts, nil
}

// FetchNotifications returns notifications strictly after sinceID, oldest
// first. Direct-message mentions are excluded; they belong to FetchDirect.
func (c *Client) FetchNotifications(ctx context.Context, s *domain.Session, sinceID string) ([]*domain.Notification, error) {
	raw, err := c.fetchNotifications(ctx, s, sinceID)
	if err != nil {
		return nil, err
	}
	var out []*domain.Notification
	for _, n := range raw {
		if isDirectMessage(n) {
			continue
		}
		out = append(out, toNotification(n))
	}
	return out, nil
}

// FetchDirect returns incoming direct messages strictly after sinceID,
// oldest first. A direct message is a direct-visibility mention with a
// single mentioned account, as rendered by Mastodon's notification feed.
// The returned posts carry the notification id as StreamID for cursoring.
func (c *Client) FetchDirect(ctx context.Context, s *domain.Session, sinceID string) ([]*domain.Post, error) {
	raw, err := c.fetchNotifications(ctx, s, sinceID)
	if err != nil {
		return nil, err
	}
	var out []*domain.Post
	for _, n := range raw {
		if !isDirectMessage(n) {
			continue
		}
		p := toPost(n.Status)
		p.StreamID = string(n.ID)
		out = append(out, p)
	}
	return out, nil
}

func (c *Client) fetchNotifications(ctx context.Context, s *domain.Session, sinceID string) ([]*mastodon.Notification, error) {
	pg := &mastodon.Pagination{Limit: pageLimit}
	if sinceID != "" {
		pg.MinID = mastodon.ID(sinceID)
	}
	raw, err := sessionClient(s).GetNotifications(ctx, pg)
	if err != nil {
		return nil, classify(err)
	}
	// reverse to oldest first
	for i, j := 0, len(raw)-1; i < j; i, j = i+1, j-1 {
		raw[i], raw[j] = raw[j], raw[i]
	}
	return raw, nil
}

func isDirectMessage(n *mastodon.Notification) bool {
	return n.Type == "mention" &&
		n.Status != nil &&
		n.Status.Visibility == string(domain.VisibilityDirect) &&
		len(n.Status.Mentions) == 1
}

// LookupAccount resolves a handle or numeric id to an account
func (c *Client) LookupAccount(ctx context.Context, s *domain.Session, handle string) (*domain.Author, error) {
	cli := sessionClient(s)
	if isDigits(handle) {
		acc, err := cli.GetAccount(ctx, mastodon.ID(handle))
		if err != nil {
			return nil, classify(err)
		}
		return toAuthor(acc), nil
	}

	handle = domain.NormalizeHandle(handle)
	localPart := handle
	if i := strings.IndexByte(handle, '@'); i >= 0 {
		localPart = handle[:i]
	}
	results, err := cli.AccountsSearch(ctx, handle, 10)
	if err != nil {
		return nil, classify(err)
	}
	for _, acc := range results {
		acct := strings.ToLower(string(acc.Acct))
		if acct == handle || acct == localPart {
			return toAuthor(acc), nil
		}
	}
	return nil, fmt.Errorf("%w: %s", domain.ErrAccountNotFound, handle)
}

// Follow follows an account
func (c *Client) Follow(ctx context.Context, s *domain.Session, accountID string) error {
	_, err := sessionClient(s).AccountFollow(ctx, mastodon.ID(accountID))
	return classify(err)
}

// Unfollow unfollows an account
func (c *Client) Unfollow(ctx context.Context, s *domain.Session, accountID string) error {
	_, err := sessionClient(s).AccountUnfollow(ctx, mastodon.ID(accountID))
	return classify(err)
}

// Block blocks an account
func (c *Client) Block(ctx context.Context, s *domain.Session, accountID string) error {
	_, err := sessionClient(s).AccountBlock(ctx, mastodon.ID(accountID))
	return classify(err)
}

// Unblock unblocks an account
func (c *Client) Unblock(ctx context.Context, s *domain.Session, accountID string) error {
	_, err := sessionClient(s).AccountUnblock(ctx, mastodon.ID(accountID))
	return classify(err)
}

// Mute mutes an account
func (c *Client) Mute(ctx context.Context, s *domain.Session, accountID string) error {
	_, err := sessionClient(s).AccountMute(ctx, mastodon.ID(accountID))
	return classify(err)
}

// Unmute unmutes an account
func (c *Client) Unmute(ctx context.Context, s *domain.Session, accountID string) error {
	_, err := sessionClient(s).AccountUnmute(ctx, mastodon.ID(accountID))
	return classify(err)
}

// Favourite favourites a toot
func (c *Client) Favourite(ctx context.Context, s *domain.Session, tootID string) error {
	_, err := sessionClient(s).Favourite(ctx, mastodon.ID(tootID))
	return classify(err)
}

// Reblog boosts a toot
func (c *Client) Reblog(ctx context.Context, s *domain.Session, tootID string) error {
	_, err := sessionClient(s).Reblog(ctx, mastodon.ID(tootID))
	return classify(err)
}

// UpdateBio updates the account biography
func (c *Client) UpdateBio(ctx context.Context, s *domain.Session, note string) error {
	_, err := sessionClient(s).AccountUpdate(ctx, &mastodon.Profile{Note: &note})
	return classify(err)
}

// FetchProfile returns the detailed profile of an account. For accounts
// other than the owner it also resolves the relationship.
func (c *Client) FetchProfile(ctx context.Context, s *domain.Session, accountID string) (*domain.Profile, error) {
	cli := sessionClient(s)
	acc, err := cli.GetAccount(ctx, mastodon.ID(accountID))
	if err != nil {
		return nil, classify(err)
	}
	p := &domain.Profile{
		Account:   *toAuthor(acc),
		NoteHTML:  acc.Note,
		Toots:     acc.StatusesCount,
		Following: acc.FollowingCount,
		Followers: acc.FollowersCount,
	}
	for _, f := range acc.Fields {
		p.Fields = append(p.Fields, domain.ProfileField{Name: f.Name, Value: f.Value})
	}
	if string(acc.ID) != s.AccountID {
		rels, err := cli.GetAccountRelationships(ctx, []string{accountID})
		if err != nil {
			return nil, classify(err)
		}
		if len(rels) > 0 {
			p.Rel = &domain.Relationship{
				Following:  rels[0].Following,
				FollowedBy: rels[0].FollowedBy,
				Requested:  rels[0].Requested,
				Muting:     rels[0].Muting,
				Blocking:   rels[0].Blocking,
			}
		}
	}
	statuses, err := cli.GetAccountStatuses(ctx, acc.ID, &mastodon.Pagination{Limit: 10})
	if err != nil {
		return nil, classify(err)
	}
	for i := len(statuses) - 1; i >= 0; i-- {
		p.Recent = append(p.Recent, toPost(statuses[i]))
	}
	return p, nil
}

// FetchThread returns a toot with its ancestors and replies, oldest first
func (c *Client) FetchThread(ctx context.Context, s *domain.Session, tootID string) ([]*domain.Post, error) {
	cli := sessionClient(s)
	st, err := cli.GetStatus(ctx, mastodon.ID(tootID))
	if err != nil {
		return nil, classify(err)
	}
	tc, err := cli.GetStatusContext(ctx, st.ID)
	if err != nil {
		return nil, classify(err)
	}
	out := make([]*domain.Post, 0, len(tc.Ancestors)+1+len(tc.Descendants))
	for _, a := range tc.Ancestors {
		out = append(out, toPost(a))
	}
	out = append(out, toPost(st))
	for _, d := range tc.Descendants {
		out = append(out, toPost(d))
	}
	return out, nil
}

// Search queries the instance for matching accounts and hashtags
func (c *Client) Search(ctx context.Context, s *domain.Session, query string) (*domain.SearchResults, error) {
	res, err := sessionClient(s).Search(ctx, query, false)
	if err != nil {
		return nil, classify(err)
	}
	out := &domain.SearchResults{}
	for _, acc := range res.Accounts {
		out.Accounts = append(out.Accounts, *toAuthor(acc))
	}
	for _, tag := range res.Hashtags {
		out.Hashtags = append(out.Hashtags, strings.ToLower(tag.Name))
	}
	return out, nil
}

func toNotification(n *mastodon.Notification) *domain.Notification {
	out := &domain.Notification{
		ID:   string(n.ID),
		Kind: domain.NotificationKind(n.Type),
		From: *toAuthor(&n.Account),
	}
	if n.Status != nil {
		out.Status = toPost(n.Status)
	}
	return out
}

func toAuthor(acc *mastodon.Account) *domain.Author {
	return &domain.Author{
		ID:          string(acc.ID),
		Acct:        strings.ToLower(string(acc.Acct)),
		DisplayName: acc.DisplayName,
		Bot:         acc.Bot,
		AvatarURL:   acc.AvatarStatic,
	}
}

func toPost(st *mastodon.Status) *domain.Post {
	var booster *domain.Author
	if st.Reblog != nil {
		b := toAuthor(&st.Account)
		booster = b
		st = st.Reblog
	}
	p := &domain.Post{
		ID:         string(st.ID),
		StreamID:   string(st.ID),
		Author:     *toAuthor(&st.Account),
		Booster:    booster,
		HTML:       st.Content,
		URL:        st.URL,
		Visibility: domain.Visibility(st.Visibility),
		CreatedAt:  st.CreatedAt,
	}
	for _, tag := range st.Tags {
		p.Tags = append(p.Tags, strings.ToLower(tag.Name))
	}
	for _, m := range st.Mentions {
		p.Mentions = append(p.Mentions, domain.Mention{
			ID:   string(m.ID),
			Acct: strings.ToLower(string(m.Acct)),
			URL:  m.URL,
		})
	}
	for _, att := range st.MediaAttachments {
		if att.URL != "" {
			p.Attachments = append(p.Attachments, att.URL)
		}
	}
	return p
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// classify maps a Mastodon client error into the bridge taxonomy. The
// library reports API failures as plain errors carrying the HTTP status
// line, so classification inspects the message.
func classify(err error) error {
	if err == nil {
		return nil
	}
	if isTransient(err) {
		return fmt.Errorf("%w: %v", domain.ErrInstance, err)
	}
	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "401") || strings.Contains(msg, "unauthorized"):
		return fmt.Errorf("%w: %v", domain.ErrAuth, err)
	case strings.Contains(msg, "403") || strings.Contains(msg, "forbidden"):
		return fmt.Errorf("%w: %v", domain.ErrAuth, err)
	case strings.Contains(msg, "422") || strings.Contains(msg, "unprocessable"):
		return fmt.Errorf("%w: %v", domain.ErrContentRejected, err)
	default:
		return fmt.Errorf("%w: %v", domain.ErrInstance, err)
	}
}

// isTransient reports network-level failures and rate limiting, which are
// retried rather than surfaced
func isTransient(err error) bool {
	var netErr net.Error
	var urlErr *url.Error
	if errors.As(err, &netErr) || errors.As(err, &urlErr) {
		return true
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "429") ||
		strings.Contains(msg, "too many requests") ||
		strings.Contains(msg, "500") ||
		strings.Contains(msg, "502") ||
		strings.Contains(msg, "503") ||
		strings.Contains(msg, "504")
}
