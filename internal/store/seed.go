package store

import (
	"fmt"
	"time"
)

// SeedTemplates populates an empty template catalog with two example
// phishing templates. A catalog that already holds any template is left
// untouched.
func SeedTemplates(templates *FolderStore[Template]) error {
	ids, err := templates.List()
	if err != nil {
		return fmt.Errorf("failed to inspect template catalog: %w", err)
	}
	if len(ids) > 0 {
		return nil
	}

	now := time.Now()
	created := now.UTC().Format("2006-01-02 15:04:05")
	millis := now.UnixMilli()

	seeds := []Template{
		{
			ID:          fmt.Sprintf("template_%d", millis),
			Name:        "Password Reset Request",
			Description: "Fake password reset request template for phishing tests",
			Subject:     "URGENT: Your Account Password Reset Request",
			Body:        passwordResetBody,
			CreatedAt:   created,
			UpdatedAt:   created,
		},
		{
			ID:          fmt.Sprintf("template_%d", millis+1),
			Name:        "IT Security Update Required",
			Description: "Fake IT security update notification template for phishing tests",
			Subject:     "IMPORTANT: Security Update Required for Your Corporate Account",
			Body:        itSecurityBody,
			CreatedAt:   created,
			UpdatedAt:   created,
		},
	}

	for i := range seeds {
		if err := templates.Save(seeds[i].ID, &seeds[i]); err != nil {
			return fmt.Errorf("failed to seed template %s: %w", seeds[i].Name, err)
		}
	}
	return nil
}

const passwordResetBody = `<html><head><style>body{font-family:Arial,sans-serif;line-height:1.6;color:#333}a{color:#0066cc}a.button{display:inline-block;padding:10px 20px;background-color:#0066cc;color:white;text-decoration:none;border-radius:4px;font-weight:bold}.header{padding:20px;background-color:#f8f8f8;border-bottom:1px solid #ddd}.footer{margin-top:40px;padding:20px;background-color:#f8f8f8;border-top:1px solid #ddd;font-size:12px;color:#666}.logo{max-height:50px}.container{max-width:600px;margin:0 auto;padding:20px}</style></head><body><div class='container'><div class='header'><img src='https://via.placeholder.com/150x50' alt='Company Logo' class='logo'></div><h2>Password Reset Request</h2><p>Dear Valued Customer,</p><p>We've received a request to reset your password. If you did not request this change, please ignore this email and your account will remain secure.</p><p>To reset your password, please click on the button below:</p><p style='text-align:center;margin:30px 0'><a href='https://account-verification.example.com/reset?token=eyJhbGciOiJIUzI1NiIsInR5cCI6IkpXVCJ9' class='button'>Reset Password</a></p><p>This link will expire in 24 hours for security reasons.</p><p>If the button above doesn't work, please copy and paste the following URL into your browser:</p><p><a href='https://account-verification.example.com/reset?token=eyJhbGciOiJIUzI1NiIsInR5cCI6IkpXVCJ9'>https://account-verification.example.com/reset?token=eyJhbGciOiJIUzI1NiIsInR5cCI6IkpXVCJ9</a></p><p>If you didn't request a password reset, please contact our security team immediately at security@example.com.</p><p>Regards,<br>The Security Team</p><div class='footer'><p>This email was sent to you as a registered user of our service. Please do not reply to this message; it was sent from an unmonitored email address.</p><p>&copy; 2025 Example Company. All rights reserved.</p></div></div></body></html>`

const itSecurityBody = `<html><head><style>body{font-family:Arial,sans-serif;line-height:1.6;color:#333}a{color:#0066cc}a.button{display:inline-block;padding:10px 20px;background-color:#28a745;color:white;text-decoration:none;border-radius:4px;font-weight:bold}.header{padding:20px;background-color:#f8f8f8;border-bottom:1px solid #ddd}.footer{margin-top:40px;padding:20px;background-color:#f8f8f8;border-top:1px solid #ddd;font-size:12px;color:#666}.logo{max-height:50px}.container{max-width:600px;margin:0 auto;padding:20px}.alert{background-color:#fff3cd;border:1px solid #ffeeba;padding:15px;margin:20px 0;border-radius:4px;color:#856404}</style></head><body><div class='container'><div class='header'><img src='https://via.placeholder.com/150x50' alt='Company Logo' class='logo'></div><h2>Important Security Update Required</h2><div class='alert'><strong>Security Notice:</strong> Our systems have detected that your account security needs to be updated immediately.</div><p>Dear Team Member,</p><p>The IT Security Department has identified that your corporate account requires an urgent security update to protect against recent cyber threats targeting our organization.</p><p><strong>Action Required:</strong> Please authenticate and update your account security settings by clicking the secure link below:</p><p style='text-align:center;margin:30px 0'><a href='https://security-verification.example.com/update?employee=user123' class='button'>Update Security Settings</a></p><p>This security update includes:</p><ul><li>Enhanced password protection</li><li>Multi-factor authentication reconfiguration</li><li>Security question updates</li><li>Device verification</li></ul><p><strong>DEADLINE:</strong> Please complete this update within 24 hours to maintain access to company resources.</p><p>If you have any questions or need assistance, please contact the IT Help Desk at helpdesk@example.com or ext. 5555.</p><p>Thank you for your prompt attention to this security matter.</p><p>Regards,<br>IT Security Department</p><div class='footer'><p>This is an automated system email. Please do not reply to this message.</p><p>&copy; 2025 Example Corporation. All rights reserved.</p><p><small>IT-SEC-2025-05-17-01</small></p></div></div></body></html>`
