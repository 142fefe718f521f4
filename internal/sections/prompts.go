package sections

// InputPlaceholder is substituted by the flow runtime with the evidence payload.
const InputPlaceholder = "{{input}}"

const executiveSummaryPrompt = `Draft the Executive Summary for the Investment Committee meeting from the provided information: {{input}}. Follow the structure below exactly and add no introductory text.

1. Transaction Overview:
   - Target company name, location and industry focus.
   - Deal type and transaction value, including upfront payment, earnouts and other consideration.
   - Relevant transaction timelines.

2. Strategic Rationale:
   - Fit of the acquisition with organizational objectives.
   - Distinctive features of the target such as proprietary technology, market position or growth potential.
   - Synergies with the existing portfolio or operations.

3. Key Investment Highlights:
   - Core financial metrics (revenue, growth, gross margin) against industry benchmarks.
   - Market potential, total addressable market and competitive positioning.
   - Notable operational, product or customer metrics.

4. Critical Risks and Mitigants:
   - Major transaction risks such as integration, talent retention or competitive dynamics.
   - Mitigation strategies and planned actions.

5. Required Actions:
   - Next steps including approvals, due diligence and closing timeline.

6. References:
   - Numbered list of sources for every data point, formatted as:
     1. [URL/Section/Page]

Requirements:
- Use subheadings and bullet points under each section.
- Quantify statements with specific metrics and comparative data.
- Keep the main text within 1000 words.
- Cite each sourced line with a numbered reference such as [1].
- Do not invent references; list each source once.
- Output nothing outside this structure.
`

const companyOverviewPrompt = `Draft the Company Overview section from the provided information: {{input}}. Follow the structure below exactly and add no introductory text.

1. Company Introduction:
   - History and evolution of the company.
   - Current business focus and mission.
   - Key operating metrics such as annual revenue, headcount and number of locations.

2. Business Model:
   - Core value proposition.
   - Primary revenue streams and their weight.
   - Major partnerships and business relationships.
   - Cost structure and profit margins.

3. Products and Services:
   - Primary offerings with distinctive features and competitive advantages.
   - Technology, intellectual property and R&D efforts.
   - Planned products or service enhancements.

4. Market Position:
   - Target segments and customer demographics.
   - Market share and industry rankings.
   - Comparison with key competitors, with supporting examples.

5. Operations Overview:
   - Geographic reach and market coverage.
   - Production or service delivery capabilities.
   - Quality assurance measures and certifications.
   - Operating metrics such as production volume or service efficiency.

6. Management and Organization:
   - Leadership team and professional backgrounds.
   - Organization structure and key functional areas.

7. References:
   - Numbered list of sources for all data and statements, formatted as:
     1. URL/Section/Page

Requirements:
- Use subheadings and bullet points for each section.
- Quantify information and include industry benchmarks or competitor data where relevant.
- Keep the content within 1000 words.
- Cite sources as [1], [2] and do not invent references.
- Output nothing outside this structure.
`

const financialOverviewPrompt = `Draft the Financial Overview section from the provided information: {{input}}. Follow the structure below exactly.

1. Financial Highlights:
   - Revenue trends and growth metrics.
   - Profitability: gross margin, operating margin, net income.
   - EBITDA, ROE and ROA.
   - Significant developments such as acquisitions or large contracts.

2. Historical Performance Analysis:
   - Revenue breakdown by product, service or geography.
   - Cost structure trends, fixed versus variable.
   - Margin changes over time and the effect of operating leverage.

3. Balance Sheet Overview:
   - Asset base: fixed, current and intangible.
   - Working capital: receivables, payables, inventory.
   - Capital structure and debt-to-equity ratio.
   - Liquidity: cash reserves and current ratio.

4. Cash Flow Analysis:
   - Operating cash flow trends and drivers.
   - Capital expenditures and their purpose.
   - Free cash flow generation and use.
   - Cash conversion cycle.

5. Key Operating Metrics:
   - Unit economics.
   - Customer metrics such as churn and lifetime value.
   - Efficiency ratios such as asset and inventory turnover.
   - Industry-specific KPIs.

6. Financial Projections:
   - Growth projections and margin expectations.
   - Planned capital expenditures and funding requirements.
   - Key drivers and risks to the forecast.

7. References:
   - Numbered list of all cited sources, formatted as:
     1. URL/Section/Page

Requirements:
- Use subheadings and bullet points for all sections.
- Quantify data and compare with industry averages or competitors.
- Emphasize year-over-year trends.
- Keep the content within 1000 words.
- Cite sources as [1], [2] and do not invent references.
- Output nothing outside this structure, including warnings.
`
