package flow

import (
	"github.com/P4ST4S/session-sdk-demo-sub000/utils"
	"github.com/ztrue/tracerr"
	"time"
)

// otpTestCode is the only code the demo backend accepts.
const otpTestCode = "123456"

// otpResendCooldown is the delay before a new code can be requested.
const otpResendCooldown = 60 * time.Second

var (
	// ErrorOTPMismatch is returned when the entered code is well-formed but wrong
	ErrorOTPMismatch = utils.NewVerifError("FLOW_OTP_MISMATCH", "the entered code does not match")
	// ErrorOTPResendCooldown is returned when a resend is requested before the cooldown has elapsed
	ErrorOTPResendCooldown = utils.NewVerifError("FLOW_OTP_RESEND_COOLDOWN", "a new code cannot be requested yet")
)

type otpState struct {
	input      string
	errored    bool
	lastSentAt time.Time
}

func newOTPState(now time.Time) *otpState {
	return &otpState{lastSentAt: now}
}

// OTPInput returns the code entered so far. A failed attempt keeps the input
// as entered so the subject can edit it in place.
func (flow *SessionFlow) OTPInput() (string, bool) {
	flow.lock.Lock()
	defer flow.lock.Unlock()
	if flow.otp == nil {
		return "", false
	}
	return flow.otp.input, flow.otp.errored
}

// OTPContactHint returns the masked contact the code was sent to.
func (flow *SessionFlow) OTPContactHint() string {
	flow.lock.Lock()
	defer flow.lock.Unlock()
	return flow.maskedContactLocked()
}

// EnterOTP checks the entered code. A malformed code fails validation before
// any comparison. A well-formed wrong code flags the error and keeps the
// input untouched; a matching code advances the session.
func (flow *SessionFlow) EnterOTP(code string) error {
	flow.lock.Lock()
	defer flow.lock.Unlock()
	if err := flow.checkStage(StageOTP); err != nil {
		return err
	}
	if !utils.IsOTPFormat(code) {
		return tracerr.Wrap(utils.ErrorInvalidOTPFormat)
	}
	flow.otp.input = code
	if code != otpTestCode {
		flow.otp.errored = true
		return tracerr.Wrap(ErrorOTPMismatch)
	}
	flow.otp.errored = false
	flow.advanceLocked()
	return nil
}

// CanResendOTP reports whether the resend cooldown has elapsed.
func (flow *SessionFlow) CanResendOTP() bool {
	flow.lock.Lock()
	defer flow.lock.Unlock()
	if flow.otp == nil {
		return false
	}
	return !flow.options.Now().Before(flow.otp.lastSentAt.Add(otpResendCooldown))
}

// ResendOTP requests a new code. It resets the entered input and the error
// flag, and restarts the cooldown.
func (flow *SessionFlow) ResendOTP() error {
	flow.lock.Lock()
	defer flow.lock.Unlock()
	if err := flow.checkStage(StageOTP); err != nil {
		return err
	}
	now := flow.options.Now()
	if now.Before(flow.otp.lastSentAt.Add(otpResendCooldown)) {
		return tracerr.Wrap(ErrorOTPResendCooldown)
	}
	flow.logger.Debug().Str("contact", flow.maskedContactLocked()).Msg("Resending OTP code")
	flow.otp.input = ""
	flow.otp.errored = false
	flow.otp.lastSentAt = now
	return nil
}

func (flow *SessionFlow) maskedContactLocked() string {
	if flow.contact == nil {
		return ""
	}
	if flow.contact.PhoneNumber != "" {
		return utils.MaskPhoneNumber(flow.contact.PhoneNumber)
	}
	return utils.MaskEmail(flow.contact.Email)
}
