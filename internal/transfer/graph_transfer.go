package transfer

// GraphErrorResponse is the error envelope shared by the Instagram and
// Facebook Graph APIs.
type GraphErrorResponse struct {
	Error GraphError `json:"error"`
}

type GraphError struct {
	Message      string `json:"message"`
	Type         string `json:"type"`
	Code         int    `json:"code"`
	ErrorSubcode int    `json:"error_subcode"`
	IsTransient  bool   `json:"is_transient"`
	ErrorUserMsg string `json:"error_user_msg"`
	FbtraceID    string `json:"fbtrace_id"`
}

type GraphTokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int64  `json:"expires_in"`
	UserID      int64  `json:"user_id"`
}

type GraphIDResponse struct {
	ID     string `json:"id"`
	PostID string `json:"post_id"`
}

// InstagramContainerStatus reports the processing state of a media container.
type InstagramContainerStatus struct {
	ID         string `json:"id"`
	StatusCode string `json:"status_code"`
	Status     string `json:"status"`
}

type InstagramUserInfo struct {
	UserID   string `json:"user_id"`
	Username string `json:"username"`
	Name     string `json:"name"`
}

type FacebookPage struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	AccessToken string `json:"access_token"`
}

type FacebookPageList struct {
	Data []FacebookPage `json:"data"`
}
